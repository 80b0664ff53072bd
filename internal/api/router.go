// Package api exposes the order handlers over HTTP for local runs and
// container deployments.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"redshift-orders/internal/domain"
	"redshift-orders/internal/handler"
	"redshift-orders/internal/middleware"
	"redshift-orders/internal/orders"
)

// maxBodyBytes bounds the provision request body.
const maxBodyBytes = 4 << 10

// Orders is the subset of *handler.Handler the router serves.
type Orders interface {
	Read(ctx context.Context, req orders.ReadRequest) handler.Response
	Provision(ctx context.Context, req orders.ProvisionRequest) handler.Response
}

// RouterOptions configure NewRouter.
type RouterOptions struct {
	RateLimit middleware.RateLimitConfig
	Logger    *slog.Logger
}

// NewRouter mounts GET /orders, POST /orders and GET /healthz.
func NewRouter(h Orders, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimiter(opts.RateLimit))

		r.Get("/orders", func(w http.ResponseWriter, req *http.Request) {
			limit, err := handler.ParseLimit(req.URL.Query().Get("limit"))
			if err != nil {
				writeResponse(w, handler.ErrorResponse(err))
				return
			}
			writeResponse(w, h.Read(req.Context(), orders.ReadRequest{Limit: limit}))
		})

		r.Post("/orders", func(w http.ResponseWriter, req *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
			if err != nil {
				writeResponse(w, handler.ErrorResponse(domain.ErrValidation("request body too large")))
				return
			}
			preq, err := handler.ParseProvisionBody(body)
			if err != nil {
				writeResponse(w, handler.ErrorResponse(err))
				return
			}
			writeResponse(w, h.Provision(req.Context(), preq))
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"invocation_id", domain.InvocationIDFromContext(r.Context()),
			)
		})
	}
}

func writeResponse(w http.ResponseWriter, resp handler.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
