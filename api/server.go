// Package api exposes the scorebook over HTTP.
//
// Writes go through the command bus, so validation, idempotency, metrics
// and tracing middleware apply exactly as they do for the CLI. A caller may
// send an Idempotency-Key header to make a retried request safe; the server
// never retries on its own.
//
//	POST /api/matches                        initialize a match
//	GET  /api/matches/{id}                   current state
//	GET  /api/matches/{id}/history           action history
//	POST /api/matches/{id}/at-bats           record an at-bat
//	POST /api/matches/{id}/substitutions     substitute a player
//	POST /api/matches/{id}/half-innings/end  end the half inning
//	POST /api/matches/{id}/adjustments       adjust the score
//	POST /api/matches/{id}/end               end the match
//	POST /api/matches/{id}/undo              undo actions
//	POST /api/matches/{id}/redo              redo actions
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	origins []string
	metrics http.Handler
}

// WithAllowedOrigins sets the CORS origins. Default allows none.
func WithAllowedOrigins(origins ...string) RouterOption {
	return func(c *routerConfig) {
		c.origins = origins
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(c *routerConfig) {
		c.metrics = h
	}
}

// NewRouter creates the router with all routes configured.
func NewRouter(h *Handler, opts ...RouterOption) *chi.Mux {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if len(cfg.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, CorrelationIDHeader},
			ExposedHeaders: []string{CorrelationIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.Health)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}

	r.Route("/api/matches", func(r chi.Router) {
		r.Post("/", h.InitializeMatch)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetState)
			r.Get("/history", h.GetHistory)
			r.Post("/at-bats", h.RecordAtBat)
			r.Post("/substitutions", h.Substitute)
			r.Post("/half-innings/end", h.EndHalfInning)
			r.Post("/adjustments", h.AdjustScore)
			r.Post("/end", h.EndMatch)
			r.Post("/undo", h.Undo)
			r.Post("/redo", h.Redo)
		})
	})

	return r
}

// NewServer wraps router in an http.Server with conservative timeouts.
func NewServer(addr string, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func requestLogger(logger dugout.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"requestId", middleware.GetReqID(r.Context()))
		})
	}
}
