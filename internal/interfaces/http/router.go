// Package http assembles the API server: the chi route tree, the middleware
// chain and the http.Server lifecycle around them.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-Explorer/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware the route tree is
// built from. Nil fields leave their routes or middleware out, so partial
// wiring (as in tests) stays safe.
type RouterConfig struct {
	// Handlers
	Search    *handlers.SearchHandler
	Assignees *handlers.AssigneeHandler
	Exports   *handlers.ExportHandler
	Health    *handlers.HealthHandler

	// Middleware, applied to every route in the order CORS, metrics,
	// request logging.
	CORS           func(http.Handler) http.Handler
	Metrics        func(http.Handler) http.Handler
	RequestLogging func(http.Handler) http.Handler

	// MaxBodyBytes caps request body size when > 0.
	MaxBodyBytes int64

	// MetricsCollector serves GET /metrics when set.
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the complete route tree: public probes, the metrics
// endpoint and the /api/v1 resource groups, behind the global middleware
// chain.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if cfg.CORS != nil {
		r.Use(cfg.CORS)
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics)
	}
	if cfg.RequestLogging != nil {
		r.Use(cfg.RequestLogging)
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	}

	r.Group(func(pub chi.Router) {
		if cfg.Health != nil {
			pub.Get("/healthz", cfg.Health.Liveness)
			pub.Get("/readyz", cfg.Health.Readiness)
		}
	})

	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		registerSearchRoutes(api, cfg.Search)
		registerAssigneeRoutes(api, cfg.Assignees)
		registerExportRoutes(api, cfg.Exports)
	})

	return r
}

// registerSearchRoutes mounts the search endpoint under /patents.
func registerSearchRoutes(r chi.Router, h *handlers.SearchHandler) {
	if h == nil {
		return
	}
	r.Route("/patents", func(pr chi.Router) {
		pr.Get("/search", h.Search)
	})
}

// registerAssigneeRoutes mounts the assignee directory endpoint.
func registerAssigneeRoutes(r chi.Router, h *handlers.AssigneeHandler) {
	if h == nil {
		return
	}
	r.Get("/assignees", h.List)
}

// registerExportRoutes mounts the export endpoints under /exports.
func registerExportRoutes(r chi.Router, h *handlers.ExportHandler) {
	if h == nil {
		return
	}
	r.Route("/exports", func(er chi.Router) {
		er.Post("/", h.Create)
		er.Get("/page", h.Page)
	})
}
