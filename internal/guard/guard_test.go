package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/backend"
	"pechincha/internal/backend/backendtest"
	"pechincha/internal/logging"
	"pechincha/internal/session"
)

func defaultPolicyT(t *testing.T) *Policy {
	t.Helper()
	p, err := DefaultPolicy()
	require.NoError(t, err)
	return p
}

func resolution(authenticated, loaded bool, role session.Role, status session.AccountStatus) *session.Resolution {
	return &session.Resolution{
		Authenticated: authenticated,
		ProfileLoaded: loaded,
		Identity:      session.Identity{UserID: "u1", Role: role, Status: status},
	}
}

func TestClassify(t *testing.T) {
	p := defaultPolicyT(t)
	cases := map[string]string{
		"/admin":                "admin",
		"/admin/dashboard":      "admin",
		"/api/admin/promotions": "admin",
		"/admin/login":          "public",
		"/administrator":        "public",
		"/parceiro/dashboard":   "partner",
		"/parceiro/login":       "public",
		"/editar-promocao/abc":  "partner",
		"/api/partner/uploads":  "partner",
		"/":                     "public",
		"/api/storefront":       "public",
	}
	for path, want := range cases {
		assert.Equal(t, want, p.Classify(path).Class, path)
	}
}

func TestPolicyTable(t *testing.T) {
	p := defaultPolicyT(t)
	cases := []struct {
		name     string
		location string
		res      *session.Resolution
		state    State
		outcome  Outcome
		redirect string
	}{
		{"unresolved admin renders", "/admin/dashboard", nil, Unresolved, OutcomeRender, ""},
		{"anonymous admin", "/admin/dashboard", resolution(false, false, "", ""), Unauthenticated, OutcomeRedirect, "/admin/login?from=%2Fadmin%2Fdashboard"},
		{"blocked partner", "/parceiro/dashboard", resolution(true, true, session.RolePartner, session.StatusBlocked), Blocked, OutcomeRedirect, "/parceiro/login?from=%2Fparceiro%2Fdashboard"},
		{"admin without profile", "/admin", resolution(true, false, session.RoleUnknown, session.StatusActive), ProfileUnavailable, OutcomeRedirect, "/admin/login?from=%2Fadmin"},
		{"partner without profile", "/parceiro/dashboard", resolution(true, false, session.RoleUnknown, session.StatusActive), AllowedDegraded, OutcomeRender, ""},
		{"customer on partner route", "/parceiro/dashboard", resolution(true, true, session.RoleCustomer, session.StatusActive), WrongRole, OutcomeRedirect, "/parceiro/login?from=%2Fparceiro%2Fdashboard"},
		{"partner on admin route", "/admin", resolution(true, true, session.RolePartner, session.StatusActive), WrongRole, OutcomeRedirect, "/admin/login?from=%2Fadmin"},
		{"admin on partner route", "/parceiro/dashboard", resolution(true, true, session.RoleAdmin, session.StatusActive), Allowed, OutcomeRender, ""},
		{"anonymous public", "/", resolution(false, false, "", ""), Unauthenticated, OutcomeRender, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := p.Evaluate(tc.location, tc.res)
			assert.Equal(t, tc.state, d.State)
			assert.Equal(t, tc.outcome, d.Outcome)
			assert.Equal(t, tc.redirect, d.RedirectTo)
		})
	}
}

func TestParsePolicyValidation(t *testing.T) {
	_, err := ParsePolicy([]byte(`routes: []`))
	assert.Error(t, err)

	_, err = ParsePolicy([]byte(`
routes:
  - class: admin
    prefixes: ["/admin"]
    require_auth: true
`))
	assert.ErrorContains(t, err, "no login route")

	_, err = ParsePolicy([]byte(`
routes:
  - class: admin
    prefixes: ["/admin"]
    login: /login
    require_auth: true
    roles: [wizard]
`))
	assert.ErrorContains(t, err, "unknown role")

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - class: staff
    prefixes: ["/staff"]
    login: /staff/login
    require_auth: true
    roles: [administrador]
    on_unresolved: deny
`), 0o600))
	p, err := LoadPolicy(path)
	require.NoError(t, err)
	route := p.Classify("/staff/x")
	assert.Equal(t, []session.Role{session.RoleAdmin}, route.Roles)
	assert.Equal(t, ActionDeny, route.OnProfileUnavailable)
	assert.Equal(t, OutcomeRedirect, p.Evaluate("/staff/x", nil).Outcome)
}

type stubResolver struct {
	res   session.Resolution
	err   error
	delay time.Duration
}

func (s *stubResolver) Resolve(ctx context.Context, _ session.Credential) (session.Resolution, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return session.Resolution{}, ctx.Err()
		}
	}
	return s.res, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, _, _ := FromContext(r.Context())
		w.Header().Set("X-Guard-State", string(d.State))
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRedirectsAnonymousAdminNavigation(t *testing.T) {
	g := New(defaultPolicyT(t), &stubResolver{}, time.Second, logging.Discard(), nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard?tab=leads", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()

	g.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/login?from=%2Fadmin%2Fdashboard%3Ftab%3Dleads", rec.Header().Get("Location"))
}

func TestRedirectsCarryBasePath(t *testing.T) {
	policy := defaultPolicyT(t).WithBasePath("ofertas/")
	assert.Equal(t, "/ofertas", policy.BasePath)

	g := New(policy, &stubResolver{}, time.Second, logging.Discard(), nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	g.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/ofertas/admin/login?from=%2Fadmin%2Fdashboard", rec.Header().Get("Location"))

	d := policy.Evaluate("/parceiro/dashboard", resolution(true, true, session.RolePartner, session.StatusBlocked))
	assert.Equal(t, "/ofertas/parceiro/login?from=%2Fparceiro%2Fdashboard", d.RedirectTo)
	assert.Equal(t, "/parceiro/dashboard", d.From)

	assert.Empty(t, defaultPolicyT(t).WithBasePath("/").BasePath)
}

func TestMiddlewareAnswersAPICallsWithJSON(t *testing.T) {
	g := New(defaultPolicyT(t), &stubResolver{}, time.Second, logging.Discard(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil)
	rec := httptest.NewRecorder()

	g.Middleware(okHandler()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unauthenticated", body["state"])
	assert.Equal(t, "/admin/login?from=%2Fapi%2Fadmin%2Fleads", body["redirect"])

	partner := &stubResolver{res: *resolution(true, true, session.RolePartner, session.StatusActive)}
	g = New(defaultPolicyT(t), partner, time.Second, logging.Discard(), nil)
	rec = httptest.NewRecorder()
	g.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareFailsOpenOnTimeout(t *testing.T) {
	slow := &stubResolver{delay: time.Second}
	g := New(defaultPolicyT(t), slow, 10*time.Millisecond, logging.Discard(), nil)
	rec := httptest.NewRecorder()

	g.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/parceiro/dashboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(Unresolved), rec.Header().Get("X-Guard-State"))
}

func TestMiddlewareSkipsPublicRoutes(t *testing.T) {
	resolver := &stubResolver{err: backend.ErrTransient}
	g := New(defaultPolicyT(t), resolver, time.Second, logging.Discard(), nil)
	rec := httptest.NewRecorder()
	g.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/storefront", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Guard-State"))
}

func TestCredentialFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", CredentialFromRequest(req).AccessToken)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", CredentialFromRequest(req).AccessToken)

	assert.True(t, CredentialFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)).Empty())
}

func TestWatcherReResolvesOnAuthEvents(t *testing.T) {
	events := backend.NewEvents(logging.Discard())
	resolver := &switchResolver{}
	g := New(defaultPolicyT(t), resolver, time.Second, logging.Discard(), nil)
	w := NewWatcher(g, events, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	decisions := w.Watch(ctx, "/admin/dashboard", session.Credential{AccessToken: "t"}, nil)

	first := <-decisions
	assert.Equal(t, Unresolved, first.State)
	second := <-decisions
	assert.Equal(t, Allowed, second.State)

	resolver.set(session.Resolution{})
	events.Publish(backend.AuthEvent{Kind: backend.EventSignedOut, UserID: "u1"})
	third := <-decisions
	assert.Equal(t, Unauthenticated, third.State)
	assert.Equal(t, OutcomeRedirect, third.Outcome)

	cancel()
	for range decisions {
	}
}

func TestWatcherDropsCachedProfileBeforeReResolving(t *testing.T) {
	events := backend.NewEvents(logging.Discard())
	tables := backendtest.NewTables()
	tables.Seed(session.ProfilesTable, backend.Row{"id": "p1", "name": "Loja", "role": "partner", "status": "active"})
	auth := backendtest.NewAuth(events)
	token := auth.IssueToken("p1", "p1@example.com")
	profiles := session.NewProfiles(tables)
	resolver := session.NewResolver(auth, profiles, session.ResolverOptions{Cache: &memoryProfiles{}, RetryDelay: time.Millisecond}, logging.Discard())
	w := NewWatcher(New(defaultPolicyT(t), resolver, time.Second, logging.Discard(), nil), events, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	decisions := w.Watch(ctx, "/parceiro/dashboard", session.Credential{AccessToken: token}, nil)
	assert.Equal(t, Unresolved, (<-decisions).State)
	assert.Equal(t, Allowed, (<-decisions).State)

	blocked := session.StatusBlocked
	_, err := profiles.Update(context.Background(), "p1", session.ProfileUpdate{Status: &blocked})
	require.NoError(t, err)
	events.Publish(backend.AuthEvent{Kind: backend.EventProfileUpdated, UserID: "p1"})

	next := <-decisions
	assert.Equal(t, Blocked, next.State)
	assert.Equal(t, OutcomeRedirect, next.Outcome)

	cancel()
	for range decisions {
	}
}
