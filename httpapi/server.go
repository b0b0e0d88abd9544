// Package httpapi exposes the HTTP surface: the query and ingestion
// endpoints, on-demand classification, the WebSocket broadcast upgrade,
// metrics and health.
package httpapi

import (
	"context"
	"net/http"

	"enginewatch/sensor"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the subset of the telemetry service the routes call.
type Service interface {
	Query(ctx context.Context) sensor.Snapshot
	Ingest(batch sensor.Snapshot) int
	Classify(ctx context.Context, r sensor.Reading) sensor.Severity
}

// Deps wires the server. Service is required; nil handlers leave their
// route unregistered.
type Deps struct {
	Service Service
	Alerts  http.Handler // WebSocket upgrade for the broadcast channel
	Metrics http.Handler
	Health  func() any
}

// Server exposes the HTTP transport for the telemetry service.
type Server struct {
	router chi.Router
}

// NewServer builds the chi router.
func NewServer(deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	h := &handler{service: deps.Service, health: deps.Health}
	registerRoutes(router, h)
	if deps.Alerts != nil {
		router.Handle(routeAlerts, deps.Alerts)
	}
	if deps.Metrics != nil {
		router.Handle(routeMetrics, deps.Metrics)
	}
	return &Server{router: router}
}

// Router returns the configured chi router for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP allows Server to satisfy the http.Handler interface directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
