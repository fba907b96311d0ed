package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pechincha/internal/favorites"
	"pechincha/internal/guard"
	"pechincha/internal/leads"
	"pechincha/internal/metrics"
	"pechincha/internal/partners"
	"pechincha/internal/promo"
	"pechincha/internal/session"
)

// Uploader stores partner images and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error)
}

// Dependencies are the services behind the HTTP surface.
type Dependencies struct {
	Promotions *promo.Repository
	Favorites  *favorites.Store
	Leads      *leads.Repository
	Partners   *partners.Service
	Sessions   *session.Service
	Guard      *guard.Guard
	Watcher    *guard.Watcher
	Storage    Uploader
	Webhook    http.Handler
}

// Settings holds presentation settings used by handlers.
type Settings struct {
	AppName       string
	SupportNumber string
	CookieSecure  bool
	BasePath      string
}

// Server wraps an http.Server with the application routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	settings   Settings
	basePath   string
}

// New creates a server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, settings Settings) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		settings: settings,
		basePath: normaliseBasePath(settings.BasePath),
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}
	return server
}

// Handler returns the full middleware-wrapped route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.deps.Webhook != nil {
		mux.Handle("POST /webhook/backend", s.deps.Webhook)
	}

	s.publicRoutes(mux)
	s.authRoutes(mux)
	s.partnerRoutes(mux)
	s.adminRoutes(mux)

	var h http.Handler = mux
	if s.deps.Guard != nil {
		h = s.deps.Guard.Middleware(h)
	}
	h = withAccessToken(h)
	h = s.logRequests(h)
	h = s.recoverer(h)
	return mountWithBasePath(s.basePath, h)
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
