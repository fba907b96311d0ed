package backend

import (
	"log/slog"
	"net/http"
	"time"

	"pechincha/internal/metrics"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	AnonKey    string
	Timeout    time.Duration
	Bucket     string
	HTTPClient *http.Client
}

// Client bundles the backend services used by the application.
type Client struct {
	Tables    Tables
	Auth      *Auth
	Storage   *Storage
	Functions *Functions
	Events    *Events
}

// New builds a Client whose tabular access goes through the REST endpoint.
func New(opts Options, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	t := newTransport(opts.BaseURL, opts.AnonKey, opts.Timeout, opts.HTTPClient, logger.With("component", "backend"), m)
	bucket := opts.Bucket
	if bucket == "" {
		bucket = "promotions"
	}
	events := NewEvents(logger)
	return &Client{
		Tables:    &RESTTables{t: t},
		Auth:      &Auth{t: t, events: events, now: time.Now},
		Storage:   &Storage{t: t, bucket: bucket},
		Functions: &Functions{t: t},
		Events:    events,
	}
}

// WithTables swaps the tabular implementation, e.g. for direct Postgres access.
func (c *Client) WithTables(tables Tables) *Client {
	cp := *c
	cp.Tables = tables
	return &cp
}
