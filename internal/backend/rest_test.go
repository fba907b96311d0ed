package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/logging"
	"pechincha/internal/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, AnonKey: "anon", Timeout: time.Second}, logging.Discard(), metrics.NewUnregistered("test"))
}

func TestSelectBuildsPostgRESTQuery(t *testing.T) {
	var got *http.Request
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[{"id":"a","current_price":12.5}]`))
	})

	rows, err := client.Tables.Select(context.Background(), Query{
		Table:   "promotions",
		Filters: []Filter{Eq("status", "approved"), EqFold("store_name", "Loja_1")},
		Order:   []Order{{Column: "created_at", Desc: true}},
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 12.5, rows[0].Float("current_price"))

	require.NotNil(t, got)
	assert.Equal(t, "/rest/v1/promotions", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "*", q.Get("select"))
	assert.Equal(t, "eq.approved", q.Get("status"))
	assert.Equal(t, `ilike.Loja\_1`, q.Get("store_name"))
	assert.Equal(t, "created_at.desc", q.Get("order"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "anon", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon", got.Header.Get("Authorization"))
}

func TestCallerTokenTravelsInContext(t *testing.T) {
	var auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	})

	ctx := WithAccessToken(context.Background(), "user-token")
	_, err := client.Tables.Select(ctx, Query{Table: "profiles"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer user-token", auth)
}

func TestUpsertSendsMergePreference(t *testing.T) {
	var prefer, conflict string
	var body []map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		conflict = r.URL.Query().Get("on_conflict")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(data)
	})

	out, err := client.Tables.Upsert(context.Background(), "promotions", []Row{{"id": "p1", "title": "Arroz"}}, "id")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, prefer, "resolution=merge-duplicates")
	assert.Equal(t, "id", conflict)
	require.Len(t, body, 1)
	assert.Equal(t, "Arroz", body[0]["title"])
}

func TestUnfilteredWritesAreRefused(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.Method)
	})
	_, err := client.Tables.Update(context.Background(), "promotions", nil, Row{"status": "approved"})
	require.Error(t, err)
	require.Error(t, client.Tables.Delete(context.Background(), "promotions", nil))
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusBadRequest, ErrRejected},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})
			_, err := client.Tables.Select(context.Background(), Query{Table: "promotions"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Equal(t, "nope", MessageOf(err))
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Options{BaseURL: srv.URL, AnonKey: "anon", Timeout: time.Second}, logging.Discard(), nil)

	_, err := client.Tables.Select(context.Background(), Query{Table: "promotions"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestSignInPublishesEvent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u1","email":"a@b.c"}}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := client.Events.Subscribe(ctx)

	session, err := client.Auth.SignInWithPassword(context.Background(), "a@b.c", "secret")
	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)
	assert.False(t, session.ExpiresAt.IsZero())

	select {
	case evt := <-events:
		assert.Equal(t, EventSignedIn, evt.Kind)
		assert.Equal(t, "u1", evt.UserID)
	case <-time.After(time.Second):
		t.Fatal("no auth event delivered")
	}
}

func TestSignInBadCredentialsIsUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})
	_, err := client.Auth.SignInWithPassword(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStorageUploadReturnsPublicURL(t *testing.T) {
	var path, upsert string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		upsert = r.Header.Get("x-upsert")
		_, _ = w.Write([]byte(`{"Key":"promotions/p1/cover.png"}`))
	})
	url, err := client.Storage.Upload(context.Background(), "p1/cover.png", "image/png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "/storage/v1/object/promotions/p1/cover.png", path)
	assert.Equal(t, "true", upsert)
	assert.Contains(t, url, "/storage/v1/object/public/promotions/p1/cover.png")
}

func TestFunctionRefusalIsResultNotError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"email already registered"}`))
	})
	res, err := client.Functions.Invoke(context.Background(), "create-partner", "admin-token", map[string]string{"email": "x@y.z"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "email already registered", res.Message)
}

func TestFunctionResultEnvelopes(t *testing.T) {
	var r FunctionResult
	require.NoError(t, json.Unmarshal([]byte(`{"success":"true","message":"created"}`), &r))
	assert.True(t, r.Success)
	assert.Equal(t, "created", r.Message)

	require.NoError(t, json.Unmarshal([]byte(`{"error":"boom"}`), &r))
	assert.False(t, r.Success)
	assert.Equal(t, "boom", r.Message)

	require.NoError(t, json.Unmarshal([]byte(`{"data":{"id":"1"}}`), &r))
	assert.True(t, r.Success)
}
