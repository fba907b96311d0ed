package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/backend"
	"pechincha/internal/backend/backendtest"
	"pechincha/internal/logging"
)

type fixture struct {
	tables   *backendtest.Tables
	auth     *backendtest.Auth
	events   *backend.Events
	resolver *Resolver
}

func newFixture(t *testing.T, opts ResolverOptions) *fixture {
	t.Helper()
	events := backend.NewEvents(logging.Discard())
	f := &fixture{
		tables: backendtest.NewTables(),
		auth:   backendtest.NewAuth(events),
		events: events,
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	f.resolver = NewResolver(f.auth, NewProfiles(f.tables), opts, logging.Discard())
	return f
}

func (f *fixture) seedProfile(id, name, role, status string) {
	f.tables.Seed(ProfilesTable, backend.Row{
		"id": id, "name": name, "email": id + "@example.com", "role": role, "status": status,
		"created_at": "2025-01-01T00:00:00Z",
	})
}

func TestResolveWithoutCredential(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	res, err := f.resolver.Resolve(context.Background(), Credential{})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
}

func TestResolveLoadsProfile(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	f.seedProfile("u1", "Ana", "Administrador", "active")
	token := f.auth.IssueToken("u1", "u1@example.com")

	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.True(t, res.ProfileLoaded)
	assert.Equal(t, RoleAdmin, res.Identity.Role)
	assert.Equal(t, "Ana", res.Identity.Name)
	assert.False(t, res.Identity.Blocked())
}

func TestResolveRejectsUnknownToken(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: "forged"})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
}

func TestResolveTransientAuthFailureIsAnError(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	f.auth.GetUserErr = func(string) error { return fmt.Errorf("get user: %w", backend.ErrTransient) }

	_, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: "any"})
	assert.ErrorIs(t, err, backend.ErrTransient)
}

func TestProfileFetchRetriesOnceOnTransientFailure(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	f.seedProfile("u1", "Bia", "partner", "active")
	token := f.auth.IssueToken("u1", "u1@example.com")

	var failures int
	f.tables.Fail = func(op, table string) error {
		if table == ProfilesTable && failures == 0 {
			failures++
			return fmt.Errorf("select: %w", backend.ErrTransient)
		}
		return nil
	}

	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.True(t, res.ProfileLoaded)
	assert.Equal(t, RolePartner, res.Identity.Role)
	assert.Equal(t, 2, f.tables.Calls("select", ProfilesTable))
}

func TestProfileFetchGivesUpAfterOneRetry(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	token := f.auth.IssueToken("u1", "u1@example.com")
	f.tables.Fail = func(op, table string) error { return backend.ErrTransient }

	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.False(t, res.ProfileLoaded)
	assert.Equal(t, RoleUnknown, res.Identity.Role)
	assert.Equal(t, RoleCustomer, res.Identity.EffectiveRole())
	assert.Equal(t, 2, f.tables.Calls("select", ProfilesTable))
}

func TestProfileFetchDoesNotRetryPermanentFailure(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	token := f.auth.IssueToken("u1", "u1@example.com")
	f.tables.Fail = func(op, table string) error { return backend.ErrUnauthorized }

	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.False(t, res.ProfileLoaded)
	assert.Equal(t, 1, f.tables.Calls("select", ProfilesTable))
}

func TestBlockedProfile(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	f.seedProfile("u1", "Caio", "partner", "bloqueado")
	token := f.auth.IssueToken("u1", "u1@example.com")

	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.True(t, res.Identity.Blocked())
}

func TestRevokedTokenIsUnauthenticated(t *testing.T) {
	revoked := NewMemoryRevocations()
	f := newFixture(t, ResolverOptions{Revocations: revoked})
	f.seedProfile("u1", "Ana", "admin", "active")
	token := f.auth.IssueToken("u1", "u1@example.com")
	require.NoError(t, revoked.Revoke(context.Background(), token, time.Minute))

	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
}

func TestLocalTokenVerification(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")
	require.NotNil(t, verifier)
	f := newFixture(t, ResolverOptions{Verifier: verifier})
	f.seedProfile("u9", "Duda", "customer", "active")

	token, err := verifier.Sign("u9", "u9@example.com", time.Hour)
	require.NoError(t, err)
	res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
	require.NoError(t, err)
	assert.True(t, res.Authenticated)
	assert.Equal(t, "u9", res.Identity.UserID)

	expired, err := verifier.Sign("u9", "u9@example.com", -time.Hour)
	require.NoError(t, err)
	res, err = f.resolver.Resolve(context.Background(), Credential{AccessToken: expired})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)

	other, err := NewTokenVerifier("another-secret").Sign("u9", "u9@example.com", time.Hour)
	require.NoError(t, err)
	res, err = f.resolver.Resolve(context.Background(), Credential{AccessToken: other})
	require.NoError(t, err)
	assert.False(t, res.Authenticated)

	assert.Nil(t, NewTokenVerifier(" "))
}

type memoryCache struct {
	mu          sync.Mutex
	items       map[string]Profile
	invalidated []string
}

func (c *memoryCache) Get(_ context.Context, id string) (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	return p, ok
}

func (c *memoryCache) Set(_ context.Context, p Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[p.ID] = p
}

func (c *memoryCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}

func (c *memoryCache) invalidations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

func TestProfileCacheInvalidatedByAuthEvents(t *testing.T) {
	pc := &memoryCache{items: map[string]Profile{}}
	f := newFixture(t, ResolverOptions{Cache: pc})
	f.seedProfile("u1", "Ana", "partner", "active")
	token := f.auth.IssueToken("u1", "u1@example.com")
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, Credential{AccessToken: token})
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, Credential{AccessToken: token})
	require.NoError(t, err)
	assert.Equal(t, 1, f.tables.Calls("select", ProfilesTable))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = f.resolver.Run(runCtx, f.events) }()
	require.Eventually(t, func() bool { return f.events.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	f.events.Publish(backend.AuthEvent{Kind: backend.EventProfileUpdated, UserID: "u1"})
	require.Eventually(t, func() bool { return len(pc.invalidations()) == 1 }, time.Second, 5*time.Millisecond)

	_, ok := pc.Get(ctx, "u1")
	assert.False(t, ok)
}

type countingLookup struct {
	calls atomic.Int32
	users UserLookup
}

func (c *countingLookup) GetUser(ctx context.Context, token string) (*backend.User, error) {
	c.calls.Add(1)
	return c.users.GetUser(ctx, token)
}

func TestConcurrentResolvesShareResults(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	f.seedProfile("u1", "Ana", "partner", "active")
	token := f.auth.IssueToken("u1", "u1@example.com")
	lookup := &countingLookup{users: f.auth}
	r := NewResolver(lookup, NewProfiles(f.tables), ResolverOptions{RetryDelay: time.Millisecond}, logging.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), Credential{AccessToken: token})
			assert.NoError(t, err)
			assert.Equal(t, RolePartner, res.Identity.Role)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(8), lookup.calls.Load())
	assert.LessOrEqual(t, f.tables.Calls("select", ProfilesTable), 8)
}

func TestCancelledCallerDoesNotFailSharedProfileFetch(t *testing.T) {
	f := newFixture(t, ResolverOptions{})
	f.seedProfile("u1", "Ana", "partner", "active")
	token := f.auth.IssueToken("u1", "u1@example.com")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.tables.Fail = func(op, table string) error {
		if op == "select" && table == ProfilesTable {
			once.Do(func() { close(started) })
			<-release
		}
		return nil
	}

	impatient, cancel := context.WithCancel(context.Background())
	first := make(chan Resolution, 1)
	go func() {
		res, _ := f.resolver.Resolve(impatient, Credential{AccessToken: token})
		first <- res
	}()
	<-started

	second := make(chan Resolution, 1)
	go func() {
		res, err := f.resolver.Resolve(context.Background(), Credential{AccessToken: token})
		assert.NoError(t, err)
		second <- res
	}()

	cancel()
	select {
	case res := <-first:
		assert.False(t, res.ProfileLoaded)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(release)
	res := <-second
	assert.True(t, res.ProfileLoaded)
	assert.Equal(t, RolePartner, res.Identity.Role)
}
