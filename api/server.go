/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestLogger: Structured request logging (zap)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/verifications/*  Verification posting, correction, audit
  /api/series/*         Series number preview
  /api/periods/*        Month lock state and locking
  /api/closing/*        Year-end closing
  /api/vat/*            VAT declarations and eSKD export
  /healthz              Liveness probe
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fjorda/ledger-engine/observability"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger *zap.Logger, metrics *observability.Metrics) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Verification routes
		r.Route("/verifications", func(r chi.Router) {
			r.Get("/", h.ListVerifications)
			r.Post("/", h.CreateVerification)
			r.Get("/{id}", h.GetVerification)
			r.Put("/{id}", h.UpdateVerification)
			r.Delete("/{id}", h.DeleteVerification)
			r.Post("/{id}/correct", h.CorrectVerification)
			r.Get("/{id}/audit", h.GetVerificationAudit)
		})

		// Series routes
		r.Route("/series", func(r chi.Router) {
			r.Get("/{series}/next-number", h.GetNextNumber)
		})

		// Period lock routes
		r.Route("/periods", func(r chi.Router) {
			r.Get("/{year}/{month}/locked", h.GetPeriodLock)
			r.Put("/{year}/{month}/locked", h.LockPeriod)
		})

		// Closing routes
		r.Route("/closing", func(r chi.Router) {
			r.Post("/{year}", h.CloseYear)
		})

		// VAT routes
		r.Route("/vat", func(r chi.Router) {
			r.Get("/reports/{period}", h.GetVatReport)
			r.Get("/reports/{period}/xml", h.GetVatReportXML)
		})
	})

	// Operational endpoints
	r.Get("/healthz", h.Healthz)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			metrics.Registry,
			promhttp.HandlerOpts{},
		))
	}

	return r
}
