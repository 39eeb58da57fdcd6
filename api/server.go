/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for the frontend
  5. Instrument:  Prometheus counters and latency histograms

ROUTE GROUPS:
  /api/mentors/*   Availability, balance, earnings history
  /api/checkout/*  Payment-gated slot purchase
  /api/bookings/*  Session lifecycle and reschedules
  /api/payouts/*   Withdrawal requests and admin resolution
  /metrics         Prometheus scrape endpoint
  /healthz         Liveness probe

SECURITY NOTE:
  Identity arrives via X-Actor-ID / X-Actor-Role headers injected by
  the gateway. This service performs authorization (participant and
  role checks), not authentication.

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
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", headerActorID, headerActorRole},
		AllowCredentials: true,
	}))
	r.Use(Instrument)

	r.Route("/api", func(r chi.Router) {
		r.Route("/mentors/{id}", func(r chi.Router) {
			r.Get("/slots", h.GetSlots)
			r.Put("/availability/template", h.SaveTemplate)
			r.Get("/availability/template", h.GetTemplate)
			r.Put("/availability/overrides/{date}", h.SaveOverride)
			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.GetTransactions)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", h.BeginCheckout)
			r.Post("/{sessionID}/verify", h.VerifyCheckout)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.ListBookings)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/cancel", h.CancelBooking)
			r.Post("/{id}/complete", h.CompleteBooking)
			r.Put("/{id}/feedback", h.UpdateFeedback)
			r.Post("/{id}/reschedule", h.RequestReschedule)
			r.Post("/{id}/reschedule/{index}/respond", h.RespondReschedule)
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Post("/", h.RequestPayout)
			r.Get("/", h.ListPayouts)
			r.Post("/{id}/resolve", h.ResolvePayout)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
