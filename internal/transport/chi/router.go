package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/metrics"
)

// NewRouter mounts the API. adminKeys guard the rebuild routes; empty disables auth.
func NewRouter(s *Server, adminKeys []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.Status)
		r.Post("/ask", s.Ask)
		r.Get("/search", s.Search)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(adminKeys))
			r.Post("/rebuild", s.Rebuild)
			r.Post("/process-json", s.Rebuild)
		})
	})

	return r
}
