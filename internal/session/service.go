package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pechincha/internal/backend"
)

var (
	// ErrInvalidCredentials is returned for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBlocked is returned when the account is blocked by an admin.
	ErrBlocked = errors.New("account blocked")
	// ErrWrongRole is returned when the account cannot use the requested portal.
	ErrWrongRole = errors.New("account role not allowed here")
)

const defaultTokenTTL = time.Hour

// Authenticator is the auth service used for credential exchange.
type Authenticator interface {
	UserLookup
	SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Session, error)
	SignOut(ctx context.Context, token, userID string) error
}

// Service runs login, logout and refresh flows.
type Service struct {
	auth     Authenticator
	resolver *Resolver
	revoked  Revocations
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the auth service with a resolver. revoked may be nil.
func NewService(auth Authenticator, resolver *Resolver, revoked Revocations, logger *slog.Logger) *Service {
	return &Service{
		auth:     auth,
		resolver: resolver,
		revoked:  revoked,
		logger:   logger.With("component", "session"),
		now:      time.Now,
	}
}

// Resolver exposes the underlying resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Login exchanges credentials for a session and checks the account may use
// portal. An empty portal accepts any active account.
func (s *Service) Login(ctx context.Context, email, password string, portal Role) (*backend.Session, Resolution, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, Resolution{}, ErrInvalidCredentials
	}

	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return nil, Resolution{}, ErrInvalidCredentials
		}
		return nil, Resolution{}, fmt.Errorf("login: %w", err)
	}

	res, err := s.resolver.Resolve(ctx, Credential{AccessToken: sess.AccessToken})
	if err != nil || !res.Authenticated {
		s.logger.Warn("session not resolvable right after sign in", "user_id", sess.User.ID, "error", err)
		res = Resolution{
			Authenticated: true,
			Identity: Identity{
				UserID: sess.User.ID,
				Email:  sess.User.Email,
				Name:   sess.User.Email,
				Role:   RoleUnknown,
				Status: StatusActive,
			},
		}
	}

	if res.Identity.Blocked() {
		s.endSession(ctx, sess.AccessToken, sess.User.ID)
		return nil, res, ErrBlocked
	}
	if !PortalAllows(portal, res) {
		s.endSession(ctx, sess.AccessToken, sess.User.ID)
		return nil, res, ErrWrongRole
	}

	s.logger.Info("login", "user_id", res.Identity.UserID, "role", res.Identity.Role, "portal", portal)
	return sess, res, nil
}

// PortalAllows reports whether res may sign in through portal. The admin
// portal needs a confirmed admin profile; the partner portal lets an
// unloaded profile through.
func PortalAllows(portal Role, res Resolution) bool {
	switch portal {
	case RoleAdmin:
		return res.ProfileLoaded && res.Identity.Role == RoleAdmin
	case RolePartner:
		if !res.ProfileLoaded {
			return true
		}
		return res.Identity.Role == RolePartner || res.Identity.Role == RoleAdmin
	default:
		return true
	}
}

// Logout revokes token and ends the backend session.
func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	var userID string
	ttl := defaultTokenTTL
	if user, exp, err := s.resolver.authenticate(ctx, token); err == nil {
		userID = user.ID
		if !exp.IsZero() {
			ttl = exp.Sub(s.now())
		}
	}
	if s.revoked != nil && ttl > 0 {
		if err := s.revoked.Revoke(ctx, token, ttl); err != nil {
			s.logger.Warn("revoke token failed", "error", err)
		}
	}
	if err := s.auth.SignOut(ctx, token, userID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.resolver.Invalidate(ctx, userID)
	s.logger.Info("logout", "user_id", userID)
	return nil
}

// Refresh exchanges a refresh token for a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*backend.Session, Resolution, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, Resolution{}, ErrInvalidCredentials
	}
	sess, err := s.auth.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			return nil, Resolution{}, ErrInvalidCredentials
		}
		return nil, Resolution{}, fmt.Errorf("refresh: %w", err)
	}
	res, err := s.resolver.Resolve(ctx, Credential{AccessToken: sess.AccessToken})
	if err != nil {
		return sess, Resolution{}, fmt.Errorf("refresh: %w", err)
	}
	if res.Identity.Blocked() {
		s.endSession(ctx, sess.AccessToken, sess.User.ID)
		return nil, res, ErrBlocked
	}
	return sess, res, nil
}

func (s *Service) endSession(ctx context.Context, token, userID string) {
	if err := s.auth.SignOut(ctx, token, userID); err != nil {
		s.logger.Warn("sign out failed", "user_id", userID, "error", err)
	}
}
