package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subshare/subshare/internal/services/booking"
	"github.com/subshare/subshare/internal/services/wallet"
)

// NewRouter constructs the chi router with all API endpoints registered.
func NewRouter(engine *booking.Engine, walletSvc *wallet.Service) http.Handler {
	h := NewHandler(engine, walletSvc)
	r := chi.NewRouter()

	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/bookings", h.CreateBookingHandler)
	r.Get("/bookings/{bookingId}", h.GetBookingHandler)
	r.Post("/bookings/{bookingId}/credentials", h.ShareCredentialsHandler)
	r.Post("/bookings/{bookingId}/dispute", h.OpenDisputeHandler)

	r.Get("/accounts/{accountId}/balance", h.GetBalanceHandler)
	r.Post("/accounts/{accountId}/topup", h.TopUpHandler)
	r.Get("/accounts/{accountId}/entries", h.GetEntriesHandler)
	r.Get("/accounts/{accountId}/reconcile", h.ReconcileHandler)

	return r
}
