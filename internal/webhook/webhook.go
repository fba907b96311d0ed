// Package webhook receives database change events from the backend.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pechincha/internal/backend"
	"pechincha/internal/metrics"
)

const maxBodyBytes = 1 << 20

// SecretHeader carries the shared secret configured on the backend webhook.
const SecretHeader = "X-Webhook-Secret"

// Event is one row change reported by the backend.
type Event struct {
	Type       string      `json:"type"`
	Table      string      `json:"table"`
	Schema     string      `json:"schema"`
	Record     backend.Row `json:"record"`
	OldRecord  backend.Row `json:"old_record"`
	ReceivedAt time.Time   `json:"-"`
}

// Processor handles decoded events.
type Processor interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// Handler verifies the shared secret and forwards events.
type Handler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	secret    string
	processor Processor
}

// NewHandler creates a webhook handler. An empty secret rejects every call.
func NewHandler(logger *slog.Logger, m *metrics.Metrics, secret string, processor Processor) *Handler {
	return &Handler{
		logger:    logger.With("component", "backend_webhook"),
		metrics:   m,
		secret:    strings.TrimSpace(secret),
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		h.metrics.IncError("webhook_auth")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.metrics.IncError("webhook")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	evt, err := decodeEvent(body)
	if err != nil {
		h.metrics.IncError("webhook")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	evt.ReceivedAt = time.Now()

	if h.processor != nil {
		if err := h.processor.HandleEvent(r.Context(), evt); err != nil {
			h.logger.Error("failed processing webhook", "error", err, "type", evt.Type, "table", evt.Table)
			h.metrics.IncError("webhook_process")
			http.Error(w, "failed to process", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	got := strings.TrimSpace(r.Header.Get(SecretHeader))
	if got == "" {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			got = strings.TrimSpace(token)
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

func decodeEvent(body []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	evt.Type = strings.ToUpper(strings.TrimSpace(evt.Type))
	evt.Table = strings.TrimSpace(evt.Table)
	if evt.Type == "" || evt.Table == "" {
		return Event{}, fmt.Errorf("decode webhook event: missing type or table")
	}
	return evt, nil
}
