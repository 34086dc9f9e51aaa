// Package metrics holds the Prometheus collectors of the ledger.
package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	WebhookEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditledger_webhook_events_total",
			Help: "Billing provider webhook deliveries by event type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	CreditsIssued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditledger_credits_issued_total",
			Help: "Credits issued by transaction source",
		},
		[]string{"source"},
	)

	CreditsDebited = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditledger_credits_debited_total",
			Help: "Credits debited by transaction source",
		},
		[]string{"source"},
	)

	Allocations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditledger_allocations_total",
			Help: "Monthly allocation attempts by status",
		},
		[]string{"status"},
	)

	Retries = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditledger_allocation_retries_total",
			Help: "Failed allocation retries by outcome",
		},
		[]string{"outcome"},
	)

	Discrepancies = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditledger_discrepancies_total",
			Help: "Allocation discrepancies by type and status",
		},
		[]string{"type", "status"},
	)

	SweepDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creditledger_sweep_duration_seconds",
			Help:    "Duration of scheduled sweeps",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		},
		[]string{"sweep"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}
