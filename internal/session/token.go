package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pechincha/internal/backend"
)

// ErrTokenExpired is returned for a well-formed token past its expiry.
var ErrTokenExpired = errors.New("token expired")

// AccessClaims is the payload of an access token issued by the auth service.
type AccessClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 access tokens locally with the project's shared secret.
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewTokenVerifier returns nil when secret is empty, meaning verification
// must go through the auth service.
func NewTokenVerifier(secret string) *TokenVerifier {
	if strings.TrimSpace(secret) == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret), leeway: 30 * time.Second}
}

// Verify validates token and returns the user it was issued to along with
// its expiry.
func (v *TokenVerifier) Verify(token string) (*backend.User, time.Time, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(v.leeway), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, time.Time{}, fmt.Errorf("verify token: %w: %w", backend.ErrUnauthorized, ErrTokenExpired)
		}
		return nil, time.Time{}, fmt.Errorf("verify token: %w: %v", backend.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, time.Time{}, fmt.Errorf("verify token: %w", backend.ErrUnauthorized)
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &backend.User{ID: claims.Subject, Email: claims.Email, Metadata: claims.UserMetadata}, exp, nil
}

// Sign issues an HS256 token for userID. Used by tests and local tooling.
func (v *TokenVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
