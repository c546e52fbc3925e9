/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/ratings       Current ratings table
  /api/athletes/*    Progression history
  /api/competitions  Feed (list/append) and processed set
  /api/replay        Controller operations
  /healthz           Liveness
  /metrics           Prometheus metrics (when enabled)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/crux/rating-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if h.Metrics != nil {
		r.Use(requestMetrics(h.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/ratings", h.GetRatings)

		r.Route("/athletes", func(r chi.Router) {
			r.Get("/{id}/history", h.GetAthleteHistory)
		})

		r.Route("/competitions", func(r chi.Router) {
			r.Get("/", h.ListCompetitions)
			r.Post("/", h.AppendCompetition)
			r.Get("/processed", h.ListProcessed)
		})

		r.Post("/replay", h.TriggerReplay)
		r.Post("/recompute", h.TriggerRecompute)
		r.Post("/verify", h.VerifyRatings)
	})

	r.Get("/healthz", h.Healthz)

	if h.Metrics != nil {
		r.Method("GET", "/metrics", h.Metrics.Handler())
	}

	return r
}

// requestMetrics counts requests by matched route pattern and status code.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			m.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		})
	}
}
