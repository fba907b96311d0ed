package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pechincha/internal/metrics"
	"pechincha/internal/session"
)

// AccessCookie holds the caller's access token for browser navigation.
const AccessCookie = "pechincha_access"

// Resolver resolves a credential into a session.
type Resolver interface {
	Resolve(ctx context.Context, cred session.Credential) (session.Resolution, error)
}

// Guard enforces the policy table on HTTP requests.
type Guard struct {
	policy   *Policy
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New builds a guard. timeout bounds each resolution; on expiry the request
// proceeds as Unresolved.
func New(policy *Policy, resolver Resolver, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Guard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Guard{
		policy:   policy,
		resolver: resolver,
		timeout:  timeout,
		logger:   logger.With("component", "guard"),
		metrics:  m,
	}
}

// Policy returns the table the guard enforces.
func (g *Guard) Policy() *Policy {
	return g.policy
}

type ctxKey struct{}

type guarded struct {
	decision   Decision
	resolution *session.Resolution
}

// FromContext returns the decision and resolution attached by the middleware.
// The resolution is nil when the request went through unresolved.
func FromContext(ctx context.Context) (Decision, *session.Resolution, bool) {
	g, ok := ctx.Value(ctxKey{}).(guarded)
	return g.decision, g.resolution, ok
}

// CredentialFromRequest reads a bearer token or the access cookie.
func CredentialFromRequest(r *http.Request) session.Credential {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return session.Credential{AccessToken: strings.TrimSpace(token)}
		}
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return session.Credential{AccessToken: c.Value}
	}
	return session.Credential{}
}

// Check resolves the request's credential within the guard timeout and
// evaluates location.
func (g *Guard) Check(ctx context.Context, location string, cred session.Credential) (Decision, *session.Resolution) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.resolver.Resolve(ctx, cred)
	if err != nil {
		g.logger.Warn("session unresolved", "location", location, "error", err)
		d := g.policy.Evaluate(location, nil)
		g.metrics.ObserveGuard(d.RouteClass, string(d.State), string(d.Outcome))
		return d, nil
	}
	d := g.policy.Evaluate(location, &res)
	g.metrics.ObserveGuard(d.RouteClass, string(d.State), string(d.Outcome))
	return d, &res
}

// Middleware guards every request whose path belongs to an authenticated
// route class. HTML navigations are redirected with 303; API callers get
// 401 or 403 JSON carrying the redirect target.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := g.policy.Classify(r.URL.Path)
		if !route.RequireAuth {
			next.ServeHTTP(w, r)
			return
		}

		d, res := g.Check(r.Context(), r.URL.RequestURI(), CredentialFromRequest(r))
		if d.Outcome == OutcomeRedirect {
			g.logger.Info("guard redirect", "path", r.URL.Path, "state", d.State, "to", d.RedirectTo)
			if wantsHTML(r) {
				http.Redirect(w, r, d.RedirectTo, http.StatusSeeOther)
				return
			}
			status := http.StatusForbidden
			if d.State == Unauthenticated {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, map[string]any{
				"error":    deniedMessage(d.State),
				"state":    d.State,
				"redirect": d.RedirectTo,
			})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, guarded{decision: d, resolution: res})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func wantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func deniedMessage(s State) string {
	switch s {
	case Unauthenticated:
		return "login required"
	case Blocked:
		return "account blocked"
	case WrongRole:
		return "role not allowed"
	case ProfileUnavailable:
		return "profile unavailable, try again"
	default:
		return "access denied"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
