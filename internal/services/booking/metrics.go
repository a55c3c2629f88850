package booking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subshare_bookings_created_total",
		Help: "Bookings created in confirmed status",
	})

	providerResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subshare_provider_responses_total",
		Help: "Provider responses that activated a booking",
	})

	autoCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subshare_auto_cancellations_total",
		Help: "Bookings cancelled because the provider never responded",
	})

	sweepExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subshare_sweep_expirations_total",
		Help: "Bookings completed by the expiry sweeper",
	})

	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subshare_sweep_failures_total",
		Help: "Per-booking failures during expiry sweeps",
	})
)
