package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/backend"
	"pechincha/internal/logging"
)

func newService(t *testing.T) (*Service, *fixture, *MemoryRevocations) {
	t.Helper()
	revoked := NewMemoryRevocations()
	f := newFixture(t, ResolverOptions{Revocations: revoked})
	return NewService(f.auth, f.resolver, revoked, logging.Discard()), f, revoked
}

func TestLoginAdminPortal(t *testing.T) {
	svc, f, _ := newService(t)
	f.auth.AddUser("a1", "admin@example.com", "secret")
	f.seedProfile("a1", "Admin", "admin", "active")
	f.auth.AddUser("p1", "loja@example.com", "secret")
	f.seedProfile("p1", "Loja", "partner", "active")
	ctx := context.Background()

	sess, res, err := svc.Login(ctx, " Admin@Example.com ", "secret", RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)
	assert.Equal(t, RoleAdmin, res.Identity.Role)

	_, _, err = svc.Login(ctx, "loja@example.com", "secret", RoleAdmin)
	assert.ErrorIs(t, err, ErrWrongRole)
	assert.Contains(t, f.auth.SignedOut, "p1")

	_, _, err = svc.Login(ctx, "admin@example.com", "wrong", RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginBlockedAccount(t *testing.T) {
	svc, f, _ := newService(t)
	f.auth.AddUser("p1", "loja@example.com", "secret")
	f.seedProfile("p1", "Loja", "partner", "blocked")

	_, _, err := svc.Login(context.Background(), "loja@example.com", "secret", RolePartner)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestPortalAllows(t *testing.T) {
	admin := Resolution{Authenticated: true, ProfileLoaded: true, Identity: Identity{Role: RoleAdmin}}
	partner := Resolution{Authenticated: true, ProfileLoaded: true, Identity: Identity{Role: RolePartner}}
	customer := Resolution{Authenticated: true, ProfileLoaded: true, Identity: Identity{Role: RoleCustomer}}
	degraded := Resolution{Authenticated: true, Identity: Identity{Role: RoleUnknown}}

	assert.True(t, PortalAllows(RoleAdmin, admin))
	assert.False(t, PortalAllows(RoleAdmin, partner))
	assert.False(t, PortalAllows(RoleAdmin, degraded))
	assert.True(t, PortalAllows(RolePartner, partner))
	assert.True(t, PortalAllows(RolePartner, admin))
	assert.True(t, PortalAllows(RolePartner, degraded))
	assert.False(t, PortalAllows(RolePartner, customer))
	assert.True(t, PortalAllows("", customer))
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, f, revoked := newService(t)
	f.auth.AddUser("p1", "loja@example.com", "secret")
	f.seedProfile("p1", "Loja", "partner", "active")
	ctx := context.Background()

	sess, _, err := svc.Login(ctx, "loja@example.com", "secret", RolePartner)
	require.NoError(t, err)

	events := f.events.Subscribe(ctx)
	require.NoError(t, svc.Logout(ctx, sess.AccessToken))

	isRevoked, err := revoked.IsRevoked(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.True(t, isRevoked)

	evt := <-events
	assert.Equal(t, backend.EventSignedOut, evt.Kind)
	assert.Equal(t, "p1", evt.UserID)

	res, err := f.resolver.Resolve(ctx, Credential{AccessToken: sess.AccessToken})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
}

func TestRefreshIssuesNewSession(t *testing.T) {
	svc, f, _ := newService(t)
	f.auth.AddUser("p1", "loja@example.com", "secret")
	f.seedProfile("p1", "Loja", "partner", "active")
	ctx := context.Background()

	sess, _, err := svc.Login(ctx, "loja@example.com", "secret", "")
	require.NoError(t, err)

	next, res, err := svc.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessToken, next.AccessToken)
	assert.Equal(t, RolePartner, res.Identity.Role)

	_, _, err = svc.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNormalizeRoleAndStatus(t *testing.T) {
	assert.Equal(t, RolePartner, NormalizeRole("Parceiro"))
	assert.Equal(t, RoleCustomer, NormalizeRole("cliente"))
	assert.Equal(t, RoleUnknown, NormalizeRole(""))
	assert.Equal(t, RoleUnknown, NormalizeRole(nil))
	assert.Equal(t, StatusBlocked, NormalizeAccountStatus("BLOQUEADO"))
	assert.Equal(t, StatusActive, NormalizeAccountStatus("whatever"))
}
