package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/logging"
	"pechincha/internal/promo"
)

type pendingRecorder struct {
	ids         []string
	resubmitted []bool
}

func (p *pendingRecorder) NotifyPendingPromotion(_ context.Context, pr promo.Promotion, resubmitted bool) {
	p.ids = append(p.ids, pr.ID)
	p.resubmitted = append(p.resubmitted, resubmitted)
}

func post(h http.Handler, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/backend", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRejectsBadSecret(t *testing.T) {
	h := NewHandler(logging.Discard(), nil, "s3cret", nil)
	assert.Equal(t, http.StatusUnauthorized, post(h, "", `{}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(h, "wrong", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "s3cret", `{"type":"INSERT"}`).Code)

	open := NewHandler(logging.Discard(), nil, "", nil)
	assert.Equal(t, http.StatusUnauthorized, post(open, "", `{"type":"INSERT","table":"promotions"}`).Code)
}

func TestPromotionAlerts(t *testing.T) {
	rec := &pendingRecorder{}
	h := NewHandler(logging.Discard(), nil, "s3cret", NewPromotionAlerts(rec))

	res := post(h, "s3cret", `{"type":"insert","table":"promotions","record":{"id":"p1","title":"A","status":"pendente"}}`)
	require.Equal(t, http.StatusOK, res.Code)

	post(h, "s3cret", `{"type":"UPDATE","table":"promotions","record":{"id":"p2","status":"pending"},"old_record":{"id":"p2","status":"approved"}}`)
	post(h, "s3cret", `{"type":"UPDATE","table":"promotions","record":{"id":"p3","status":"pending"},"old_record":{"id":"p3","status":"pending"}}`)
	post(h, "s3cret", `{"type":"INSERT","table":"promotions","record":{"id":"p4","status":"approved"}}`)
	post(h, "s3cret", `{"type":"INSERT","table":"partner_leads","record":{"id":"l1"}}`)

	assert.Equal(t, []string{"p1", "p2"}, rec.ids)
	assert.Equal(t, []bool{false, true}, rec.resubmitted)
}
