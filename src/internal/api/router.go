package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with all API endpoints. Metrics from
// gatherer are served at /metrics when it is not nil.
func NewRouter(deps Dependencies, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(Recovery)
	r.Use(Logger)
	r.Use(PrivateSubnetOnly) // Restrict access to private subnets
	r.Use(CORS)
	r.Use(JSONContentType)

	h := NewHandler(deps)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.CheckHealth)
		r.Get("/status", h.GetStatus)

		// Query log
		r.Get("/queries", h.GetQueries)
		r.Get("/queries/stats", h.GetQueryStats)

		// Traffic redirection
		r.Get("/redirect", h.GetRedirect)
		r.Post("/redirect", h.ControlRedirect)

		r.Get("/check/dns", h.CheckDNS) // SSE stream
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
