package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	corr "github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(corr.CorrelationID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/bookings", h.BookingWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/flights/{flightId}/inventory", h.GetFlightInventory)
		r.Get("/reservations/{serviceId}", h.GetReservation)
	})

	return r
}
