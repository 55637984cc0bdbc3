// Package http exposes the triage API, health checks, and Prometheus
// metrics over HTTP.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/fanout"
	"github.com/couchcryptid/incident-triage-service/internal/lifecycle"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the /api/v1 routes alongside health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server. ready gates /readyz.
func NewServer(
	addr string,
	svc *lifecycle.Service,
	router *fanout.Router,
	ready sharedobs.ReadinessChecker,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Server {
	h := &handler{svc: svc, router: router, logger: logger}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(requestTracing(logger))
	mux.Use(instrument(metrics))

	mux.Get("/healthz", sharedobs.LivenessHandler())
	mux.Get("/readyz", sharedobs.ReadinessHandler(ready))
	mux.Method(http.MethodGet, "/metrics", promhttp.Handler())

	mux.Route("/api/v1", func(r chi.Router) {
		r.Get("/districts", h.listDistricts)
		r.Get("/stats", h.stats)
		r.Post("/severity/preview", h.previewSeverity)
		r.Get("/reporters/{id}/trust", h.trustProfile)

		r.Get("/incidents", h.pendingIncidents)
		r.Get("/incidents/{id}", h.getIncident)
		r.Get("/crises", h.listCrises)
		r.Get("/crises/{id}", h.getCrisis)
		r.Get("/zones/{district}/messages", h.fetchMessages)
		r.Get("/zones/{district}/stream", h.streamMessages)

		r.Group(func(r chi.Router) {
			r.Use(requireIdentity)
			r.Post("/reports", h.submitReport)
			r.Post("/incidents/{id}/forward", h.forwardIncident)
			r.Post("/incidents/{id}/dismiss", h.dismissIncident)
			r.Post("/incidents/{id}/resolve", h.resolveIncident)
			r.Post("/crises/{id}/close", h.closeCrisis)
			r.Post("/zones/{district}/messages", h.publishMessage)
			r.Post("/zones/{district}/subscriptions", h.subscribe)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
