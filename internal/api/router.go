package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/technosupport/ts-evac/internal/dispatch"
	"github.com/technosupport/ts-evac/internal/ratelimit"
)

// NewRouter wires the REST surface and the display websocket endpoint.
// The limiter is optional; without redis the API runs unthrottled.
func NewRouter(h *Handler, hub *dispatch.Hub, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if limiter != nil {
		r.Use(ipLimitMiddleware(limiter, ratelimit.LimitConfig{Rate: 100, Window: time.Second}))
	}

	// CORS - the display frontends are served from a separate origin.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Websocket upgrade cannot sit behind the timeout middleware.
	r.Get("/ws/screens", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Get("/floors", h.ListFloors)
		r.Get("/floors/{id}", h.GetFloor)
		r.Put("/floors/{id}", h.PutFloor)
		r.Get("/floors/{id}/routes/latest", h.LatestRoutes)

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)

		r.Post("/sync/cloud", h.TriggerSync)
		r.Post("/cameras/{id}/reset", h.ResetCamera)
	})

	return r
}

// ipLimitMiddleware throttles per client IP. Redis trouble fails open:
// dropping route reads during an incident is worse than an unthrottled
// burst.
func ipLimitMiddleware(limiter *ratelimit.Limiter, cfg ratelimit.LimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Check(r.Context(), limiter.HashIP(r.RemoteAddr), cfg)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
