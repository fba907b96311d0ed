package backendtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pechincha/internal/backend"
)

type account struct {
	password string
	user     backend.User
}

// Auth is an in-memory authentication service issuing opaque tokens.
type Auth struct {
	mu       sync.Mutex
	accounts map[string]account
	tokens   map[string]backend.User
	refresh  map[string]backend.User
	events   *backend.Events

	// GetUserErr, when set, overrides token validation.
	GetUserErr func(token string) error
	SignedOut  []string
}

// NewAuth builds an empty auth service publishing on events (may be nil).
func NewAuth(events *backend.Events) *Auth {
	return &Auth{
		accounts: make(map[string]account),
		tokens:   make(map[string]backend.User),
		refresh:  make(map[string]backend.User),
		events:   events,
	}
}

// AddUser registers an account.
func (a *Auth) AddUser(id, email, password string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[email] = account{password: password, user: backend.User{ID: id, Email: email}}
}

// IssueToken mints an access token for userID without a password.
func (a *Auth) IssueToken(userID, email string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	token := "tok-" + uuid.NewString()
	a.tokens[token] = backend.User{ID: userID, Email: email}
	return token
}

func (a *Auth) issue(user backend.User) *backend.Session {
	access := "tok-" + uuid.NewString()
	refresh := "ref-" + uuid.NewString()
	a.tokens[access] = user
	a.refresh[refresh] = user
	return &backend.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		User:         user,
	}
}

func (a *Auth) publish(kind backend.EventKind, userID string) {
	if a.events != nil {
		a.events.Publish(backend.AuthEvent{Kind: kind, UserID: userID})
	}
}

func (a *Auth) SignInWithPassword(_ context.Context, email, password string) (*backend.Session, error) {
	a.mu.Lock()
	acc, ok := a.accounts[email]
	if !ok || acc.password != password {
		a.mu.Unlock()
		return nil, fmt.Errorf("sign in: %w", backend.ErrUnauthorized)
	}
	s := a.issue(acc.user)
	a.mu.Unlock()
	a.publish(backend.EventSignedIn, acc.user.ID)
	return s, nil
}

func (a *Auth) Refresh(_ context.Context, refreshToken string) (*backend.Session, error) {
	a.mu.Lock()
	user, ok := a.refresh[refreshToken]
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("refresh session: %w", backend.ErrUnauthorized)
	}
	delete(a.refresh, refreshToken)
	s := a.issue(user)
	a.mu.Unlock()
	a.publish(backend.EventTokenRefreshed, user.ID)
	return s, nil
}

func (a *Auth) GetUser(_ context.Context, token string) (*backend.User, error) {
	if a.GetUserErr != nil {
		if err := a.GetUserErr(token); err != nil {
			return nil, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	user, ok := a.tokens[token]
	if !ok {
		return nil, fmt.Errorf("get user: %w", backend.ErrUnauthorized)
	}
	return &user, nil
}

func (a *Auth) SignOut(_ context.Context, token, userID string) error {
	a.mu.Lock()
	delete(a.tokens, token)
	a.SignedOut = append(a.SignedOut, userID)
	a.mu.Unlock()
	a.publish(backend.EventSignedOut, userID)
	return nil
}

// FunctionCall records one Functions invocation.
type FunctionCall struct {
	Name    string
	Token   string
	Payload any
}

// Functions records invocations and answers with Result.
type Functions struct {
	mu     sync.Mutex
	Calls  []FunctionCall
	Result *backend.FunctionResult
	Err    error
}

func (f *Functions) Invoke(_ context.Context, name, token string, payload any) (*backend.FunctionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FunctionCall{Name: name, Token: token, Payload: payload})
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result != nil {
		return f.Result, nil
	}
	return &backend.FunctionResult{Success: true, Message: "ok"}, nil
}

// Storage keeps uploaded objects in memory.
type Storage struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
}

func (s *Storage) Upload(_ context.Context, objectPath, _ string, data []byte) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Objects == nil {
		s.Objects = make(map[string][]byte)
	}
	s.Objects[objectPath] = append([]byte(nil), data...)
	return "https://storage.test/public/" + objectPath, nil
}
