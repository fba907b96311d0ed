package partners

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/backend"
	"pechincha/internal/backend/backendtest"
	"pechincha/internal/leads"
	"pechincha/internal/logging"
	"pechincha/internal/session"
)

type harness struct {
	tables    *backendtest.Tables
	functions *backendtest.Functions
	leads     *leads.Repository
	events    *backend.Events
	svc       *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tables:    backendtest.NewTables(),
		functions: &backendtest.Functions{},
		events:    backend.NewEvents(logging.Discard()),
	}
	h.leads = leads.NewRepository(h.tables, nil, "Santarém", logging.Discard(), nil)
	h.svc = NewService(session.NewProfiles(h.tables), h.functions, Functions{}, h.leads, h.events, nil, logging.Discard())
	return h
}

type profileCache struct {
	mu    sync.Mutex
	items map[string]session.Profile
}

func (c *profileCache) Get(_ context.Context, userID string) (session.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[userID]
	return p, ok
}

func (c *profileCache) Set(_ context.Context, p session.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]session.Profile)
	}
	c.items[p.ID] = p
}

func (c *profileCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
}

func TestListOnlyPartners(t *testing.T) {
	h := newHarness(t)
	h.tables.Seed(session.ProfilesTable,
		backend.Row{"id": "p1", "name": "Loja 1", "role": "partner", "status": "active", "created_at": "2025-01-01T00:00:00Z"},
		backend.Row{"id": "a1", "name": "Admin", "role": "admin", "status": "active", "created_at": "2025-01-02T00:00:00Z"},
		backend.Row{"id": "p2", "name": "Loja 2", "role": "partner", "status": "blocked", "created_at": "2025-01-03T00:00:00Z"},
	)
	list, err := h.svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID)
	assert.Equal(t, session.StatusBlocked, list[0].Status)
}

func TestUpdatePublishesProfileEvent(t *testing.T) {
	h := newHarness(t)
	h.tables.Seed(session.ProfilesTable, backend.Row{"id": "p1", "name": "Loja", "role": "partner", "status": "active"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := h.events.Subscribe(ctx)

	blocked := session.StatusBlocked
	prof, err := h.svc.Update(context.Background(), "p1", session.ProfileUpdate{Status: &blocked})
	require.NoError(t, err)
	assert.Equal(t, session.StatusBlocked, prof.Status)

	evt := <-events
	assert.Equal(t, backend.EventProfileUpdated, evt.Kind)
	assert.Equal(t, "p1", evt.UserID)
}

func TestBlockingPartnerClearsCachedProfile(t *testing.T) {
	h := newHarness(t)
	h.tables.Seed(session.ProfilesTable, backend.Row{"id": "p1", "name": "Loja", "role": "partner", "status": "active"})
	auth := backendtest.NewAuth(h.events)
	token := auth.IssueToken("p1", "p1@example.com")
	profiles := session.NewProfiles(h.tables)
	resolver := session.NewResolver(auth, profiles, session.ResolverOptions{Cache: &profileCache{}, RetryDelay: time.Millisecond}, logging.Discard())
	h.svc = NewService(profiles, h.functions, Functions{}, h.leads, h.events, resolver, logging.Discard())
	ctx := context.Background()

	res, err := resolver.Resolve(ctx, session.Credential{AccessToken: token})
	require.NoError(t, err)
	require.False(t, res.Identity.Blocked())

	blocked := session.StatusBlocked
	_, err = h.svc.Update(ctx, "p1", session.ProfileUpdate{Status: &blocked})
	require.NoError(t, err)

	// No event subscriber runs here, so only the service can have cleared the cache.
	res, err = resolver.Resolve(ctx, session.Credential{AccessToken: token})
	require.NoError(t, err)
	assert.True(t, res.Identity.Blocked())
}

func TestCreateInvokesFunctionWithToken(t *testing.T) {
	h := newHarness(t)
	h.functions.Result = &backend.FunctionResult{Success: true, Data: json.RawMessage(`{"user":{"id":"new-1"}}`)}

	out, err := h.svc.Create(context.Background(), "admin-token", CreateInput{Name: "Loja", Email: " Loja@Example.com ", Password: "segredo"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", out.UserID)
	require.Len(t, h.functions.Calls, 1)
	call := h.functions.Calls[0]
	assert.Equal(t, "create-partner", call.Name)
	assert.Equal(t, "admin-token", call.Token)
	assert.Equal(t, "loja@example.com", call.Payload.(map[string]any)["email"])
}

func TestCreateRefusedByFunction(t *testing.T) {
	h := newHarness(t)
	h.functions.Result = &backend.FunctionResult{Success: false, Message: "email already registered"}

	_, err := h.svc.Create(context.Background(), "tok", CreateInput{Name: "Loja", Email: "loja@example.com", Password: "segredo"})
	assert.ErrorIs(t, err, ErrFunctionFailed)
	assert.ErrorContains(t, err, "email already registered")

	_, err = h.svc.Create(context.Background(), "tok", CreateInput{Name: "Loja", Email: "not-an-email", Password: "segredo"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	msg, err := h.svc.Delete(context.Background(), "tok", "p1")
	require.NoError(t, err)
	assert.Equal(t, "ok", msg)
	assert.Equal(t, "delete-partner", h.functions.Calls[0].Name)
	assert.Equal(t, map[string]any{"user_id": "p1"}, h.functions.Calls[0].Payload)
}

func TestCreateFromLead(t *testing.T) {
	h := newHarness(t)
	lead, err := h.leads.Create(context.Background(), leads.Input{CompanyName: "Padaria Sol", WhatsApp: "93981340104"})
	require.NoError(t, err)

	_, err = h.svc.CreateFromLead(context.Background(), "tok", lead.ID, CreateInput{Email: "sol@example.com", Password: "segredo"})
	require.NoError(t, err)
	assert.Equal(t, "Padaria Sol", h.functions.Calls[0].Payload.(map[string]any)["name"])

	got, ok := h.leads.Get(context.Background(), lead.ID)
	require.True(t, ok)
	assert.Equal(t, leads.StatusApproved, got.Status)

	_, err = h.svc.CreateFromLead(context.Background(), "tok", "missing", CreateInput{})
	assert.ErrorIs(t, err, leads.ErrNotFound)
}
