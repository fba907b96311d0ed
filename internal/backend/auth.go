package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// User is the authenticated principal as reported by the auth service.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

// Session holds the credentials issued by a sign-in or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
	ExpiresAt    json.Number `json:"expires_at"`
	User         User        `json:"user"`
}

func (r tokenResponse) session(now time.Time) *Session {
	s := &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}
	if at, err := r.ExpiresAt.Int64(); err == nil && at > 0 {
		s.ExpiresAt = time.Unix(at, 0).UTC()
	} else if in, err := r.ExpiresIn.Int64(); err == nil && in > 0 {
		s.ExpiresAt = now.Add(time.Duration(in) * time.Second).UTC()
	}
	return s
}

// Auth wraps the backend's authentication service and announces session
// changes on an Events hub.
type Auth struct {
	t      *transport
	events *Events
	now    func() time.Time
}

// SignInWithPassword exchanges email and password for a session.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("sign in: %w", ErrUnauthorized)
	}
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	err = a.t.do(ctx, request{
		service:  "auth",
		resource: "token",
		method:   http.MethodPost,
		path:     "/auth/v1/token",
		query:    url.Values{"grant_type": {"password"}},
		body:     body,
		token:    a.t.anonKey,
	}, &resp)
	if err != nil {
		// Invalid credentials come back as 400 invalid_grant.
		if errors.Is(err, ErrRejected) {
			return nil, fmt.Errorf("sign in: %w: %s", ErrUnauthorized, MessageOf(err))
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("sign in: empty access token")
	}
	session := resp.session(a.now())
	a.events.Publish(AuthEvent{Kind: EventSignedIn, UserID: session.User.ID})
	return session, nil
}

// Refresh trades a refresh token for a new session.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("refresh session: %w", ErrUnauthorized)
	}
	body, err := jsonBody(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	err = a.t.do(ctx, request{
		service:  "auth",
		resource: "token",
		method:   http.MethodPost,
		path:     "/auth/v1/token",
		query:    url.Values{"grant_type": {"refresh_token"}},
		body:     body,
		token:    a.t.anonKey,
	}, &resp)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			return nil, fmt.Errorf("refresh session: %w: %s", ErrUnauthorized, MessageOf(err))
		}
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	session := resp.session(a.now())
	a.events.Publish(AuthEvent{Kind: EventTokenRefreshed, UserID: session.User.ID})
	return session, nil
}

// GetUser validates token with the auth service and returns its principal.
func (a *Auth) GetUser(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("get user: %w", ErrUnauthorized)
	}
	var user User
	err := a.t.do(ctx, request{
		service:  "auth",
		resource: "user",
		method:   http.MethodGet,
		path:     "/auth/v1/user",
		token:    token,
	}, &user)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("get user: %w", ErrUnauthorized)
	}
	return &user, nil
}

// SignOut revokes token server-side. userID is only used for the emitted event.
func (a *Auth) SignOut(ctx context.Context, token, userID string) error {
	defer a.events.Publish(AuthEvent{Kind: EventSignedOut, UserID: userID})
	if strings.TrimSpace(token) == "" {
		return nil
	}
	err := a.t.do(ctx, request{
		service:  "auth",
		resource: "logout",
		method:   http.MethodPost,
		path:     "/auth/v1/logout",
		token:    token,
	}, nil)
	// An already expired token is as good as signed out.
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Events exposes the hub on which this client announces session changes.
func (a *Auth) Events() *Events {
	return a.events
}
