// Package api exposes the accounting core over HTTP: event intake, the
// customer hierarchy, quota management and the statistics queries.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/api/handler"
	mw "github.com/edvin/metering/internal/api/middleware"
	"github.com/edvin/metering/internal/core"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	corePool *pgxpool.Pool
}

func NewServer(logger zerolog.Logger, corePool *pgxpool.Pool, services *core.Services) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
		corePool: corePool,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint
	s.router.Handle("/metrics", promhttp.Handler())

	// Health check endpoints
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Lifecycle event intake
		event := handler.NewEvent(s.services.Event)
		r.Post("/events", event.Submit)

		// Customers
		customer := handler.NewCustomer(s.services.Customer)
		r.Get("/customers", customer.List)
		r.Post("/customers", customer.Create)
		r.Get("/customers/{id}", customer.Get)
		r.Delete("/customers/{id}", customer.Delete)

		// Projects
		project := handler.NewProject(s.services.Project, s.services.Resource)
		r.Get("/customers/{customerID}/projects", project.ListByCustomer)
		r.Post("/projects", project.Create)
		r.Get("/projects/{id}", project.Get)
		r.Delete("/projects/{id}", project.Delete)
		r.Get("/projects/{id}/resources", project.ListResources)

		// Project groups
		group := handler.NewProjectGroup(s.services.ProjectGroup)
		r.Get("/customers/{customerID}/project-groups", group.ListByCustomer)
		r.Post("/project-groups", group.Create)
		r.Get("/project-groups/{id}", group.Get)
		r.Delete("/project-groups/{id}", group.Delete)
		r.Post("/project-groups/{id}/projects", group.AddProject)
		r.Delete("/project-groups/{id}/projects", group.RemoveProject)

		// Resources
		resource := handler.NewResource(s.services.Resource)
		r.Get("/resources/{id}", resource.Get)

		// Quotas
		quota := handler.NewQuota(s.services.Ledger)
		r.Get("/scopes/{scopeType}/{scopeID}/quotas", quota.ListByScope)
		r.Put("/scopes/{scopeType}/{scopeID}/quotas/{resourceType}", quota.SetLimit)
		r.Post("/scopes/{scopeType}/{scopeID}/quota-check", quota.Check)

		// Alerts
		alert := handler.NewAlert(s.services.Alert)
		r.Post("/alerts", alert.Open)
		r.Post("/alerts/{id}/acknowledge", alert.Acknowledge)
		r.Post("/alerts/{id}/close", alert.Close)

		// Statistics
		stats := handler.NewStats(s.services.Stats, s.services.Ledger)
		r.Get("/scopes/{scopeType}/{scopeID}/usage", stats.Usage)
		r.Get("/stats/quotas", stats.Quotas)
		r.Get("/stats/quota-timeline", stats.QuotaTimeline)
		r.Get("/stats/creation-time", stats.CreationTime)
		r.Get("/stats/alerts", stats.Alerts)
		r.Get("/stats/customers", stats.Customers)
		r.Get("/stats/resources", stats.Resources)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
