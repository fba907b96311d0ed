package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pechincha/internal/metrics"
)

const tracerName = "pechincha/internal/backend"

// transport is the shared HTTP core of every backend service client.
type transport struct {
	logger  *slog.Logger
	baseURL string
	anonKey string
	http    *http.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func newTransport(baseURL, anonKey string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &transport{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    httpClient,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

type request struct {
	service     string
	resource    string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	headers     map[string]string
	// token overrides the bearer credential found in the context.
	token string
}

func jsonBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// do executes req and decodes a successful JSON response into dest when dest
// is non-nil. Failures are classified into the package sentinels.
func (t *transport) do(ctx context.Context, req request, dest any) error {
	ctx, span := t.tracer.Start(ctx, req.service+" "+req.method+" "+req.resource,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend.service", req.service),
			attribute.String("backend.resource", req.resource),
			attribute.String("http.method", req.method),
		))
	defer span.End()

	err := t.roundTrip(ctx, req, dest, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (t *transport) roundTrip(ctx context.Context, req request, dest any, span trace.Span) error {
	reqURL := t.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	contentType := req.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "pechincha/backend-client")
	httpReq.Header.Set("apikey", t.anonKey)

	token := req.token
	if token == "" {
		token = AccessTokenFrom(ctx)
	}
	if token == "" {
		token = t.anonKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	for key, val := range req.headers {
		httpReq.Header.Set(key, val)
	}

	start := time.Now()
	res, err := t.http.Do(httpReq)
	if err != nil {
		t.observe(req, "error", start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s request: %w", req.service, ctxErr)
		}
		return fmt.Errorf("%w: %s request: %v", ErrTransient, req.service, err)
	}
	defer res.Body.Close()

	statusLabel := strconv.Itoa(res.StatusCode)
	t.observe(req, statusLabel, start)
	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrTransient, req.service, err)
	}

	if res.StatusCode >= 400 {
		classified := classifyHTTPError(req.service, res.StatusCode, bodyBytes)
		t.logger.Debug("backend call failed", "service", req.service, "resource", req.resource, "status", res.StatusCode, "error", classified)
		return classified
	}

	if dest == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(bodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode %s response: %w", req.service, err)
	}
	return nil
}

func (t *transport) observe(req request, status string, start time.Time) {
	if t.metrics == nil {
		return
	}
	t.metrics.BackendRequests.WithLabelValues(req.service, req.resource, status).Inc()
	t.metrics.BackendLatency.WithLabelValues(req.service, req.resource, status).Observe(time.Since(start).Seconds())
}

func classifyHTTPError(service string, status int, body []byte) error {
	se := &StatusError{Service: service, Status: status, Message: readMessage(body)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		se.kind = ErrUnauthorized
	case status == http.StatusNotFound:
		se.kind = ErrNotFound
	case status == http.StatusConflict:
		se.kind = ErrConflict
	case status == http.StatusTooManyRequests || status >= 500:
		se.kind = ErrTransient
	default:
		se.kind = ErrRejected
	}
	return se
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
