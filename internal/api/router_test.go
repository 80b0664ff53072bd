package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redshift-orders/internal/config"
	"redshift-orders/internal/domain"
	"redshift-orders/internal/handler"
	"redshift-orders/internal/middleware"
	"redshift-orders/internal/orders"
)

type fakeOrders struct {
	mu         sync.Mutex
	reads      []orders.ReadRequest
	provisions []orders.ProvisionRequest
	ids        []string
}

func (f *fakeOrders) Read(ctx context.Context, req orders.ReadRequest) handler.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, req)
	f.ids = append(f.ids, domain.InvocationIDFromContext(ctx))
	return handler.Response{StatusCode: http.StatusOK, Headers: map[string]string{"Content-Type": "application/json"}, Body: `[{"selectResult":[]}]`}
}

func (f *fakeOrders) Provision(_ context.Context, req orders.ProvisionRequest) handler.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisions = append(f.provisions, req)
	return handler.Response{StatusCode: http.StatusOK, Body: `[{"tables":[]}]`}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	rec := do(t, NewRouter(&fakeOrders{}, RouterOptions{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
}

func TestRouter_GetOrders(t *testing.T) {
	t.Parallel()

	f := &fakeOrders{}
	r := NewRouter(f, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/orders?limit=7", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Len(t, f.reads, 1)
	assert.Equal(t, 7, f.reads[0].Limit)
	assert.Equal(t, []string{"req-123"}, f.ids, "the request id becomes the invocation id")
}

func TestRouter_GetOrdersBadLimit(t *testing.T) {
	t.Parallel()

	f := &fakeOrders{}
	rec := do(t, NewRouter(f, RouterOptions{}), http.MethodGet, "/orders?limit=abc", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var eb handler.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Equal(t, "VALIDATION_ERROR", eb.Code)
	assert.Empty(t, f.reads)
}

func TestRouter_PostOrders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantName   string
	}{
		{"empty body", "", http.StatusOK, ""},
		{"named order", `{"name":"order_5"}`, http.StatusOK, "order_5"},
		{"malformed", `{"name"`, http.StatusBadRequest, ""},
		{"too large", `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeOrders{}
			rec := do(t, NewRouter(f, RouterOptions{}), http.MethodPost, "/orders", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.Len(t, f.provisions, 1)
				assert.Equal(t, tt.wantName, f.provisions[0].OrderName)
			} else {
				assert.Empty(t, f.provisions)
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := do(t, NewRouter(&fakeOrders{}, RouterOptions{}), http.MethodDelete, "/orders", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_RateLimited(t *testing.T) {
	t.Parallel()

	r := NewRouter(&fakeOrders{}, RouterOptions{
		RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1},
	})

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/orders", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, r, http.MethodGet, "/orders", "").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", "").Code, "health checks are not limited")
}

func TestRouter_LocalEngineEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Table:        orders.DefaultTable,
		Role:         orders.DefaultRole,
		TablePattern: orders.DefaultTablePattern,
		Poll:         config.PollConfig{MaxAttempts: 5, Interval: time.Millisecond, MaxInterval: time.Millisecond},
		LocalDBPath:  ":memory:",
	}
	h, release, err := handler.NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = release() })

	srv := httptest.NewServer(NewRouter(h, RouterOptions{}))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(`{"name":"order_http"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body []handler.ReadBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	require.Len(t, body[0].SelectResult, 1)
	assert.Equal(t, "order_http", body[0].SelectResult[0]["name"])
}
