// Package httpapi exposes the operational HTTP surface (liveness, readiness,
// Prometheus metrics) plus a thin internal JSON surface over the consent
// service. The public Open Banking consent API is served by the surrounding
// gateway layers, not by this process.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// NewRouter wires the operational endpoints and the internal consent surface.
// checks run on /readyz; a failing check flips readiness without affecting
// liveness.
func NewRouter(h *Handler, checks map[string]HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/internal/consents", func(r chi.Router) {
		r.Post("/", h.createConsent)
		r.Get("/{id}", h.getConsent)
		r.Post("/{id}/authorise", h.authoriseConsent)
		r.Post("/{id}/reject", h.rejectConsent)
		r.Post("/{id}/consume", h.consumeConsent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, results)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
