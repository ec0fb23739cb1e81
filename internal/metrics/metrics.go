package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbill_charges_total",
			Help: "Billing decisions by charge kind and outcome",
		},
		[]string{"kind", "outcome"}, // compute|volume|bandwidth , charged|skipped|shortfall|failed|settled
	)

	ChargedCentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbill_charged_cents_total",
			Help: "Cents debited from account balances",
		},
		[]string{"kind"},
	)

	DeprovisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbill_deprovisions_total",
			Help: "Resources deleted by the billing loop",
		},
		[]string{"kind", "reason"}, // server|volume , orphaned|insufficient_funds
	)

	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vpsbill_sweep_duration_seconds",
			Help:    "Wall time of one billing sweep",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"task"},
	)

	SweepErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbill_sweep_errors_total",
			Help: "Sweeps that aborted before processing resources",
		},
		[]string{"task"},
	)

	UsageSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbill_usage_samples_total",
			Help: "Usage samples consumed from kafka",
		},
		[]string{"outcome"}, // stored|malformed|failed
	)

	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vpsbill_gateway_requests_total",
			Help: "Provisioning gateway calls",
		},
		[]string{"op", "outcome"}, // delete_compute|delete_volume , ok|not_found|error|circuit_open
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			ChargesTotal,
			ChargedCentsTotal,
			DeprovisionsTotal,
			SweepDuration,
			SweepErrorsTotal,
			UsageSamplesTotal,
			GatewayRequestsTotal,
		)
	})
}
