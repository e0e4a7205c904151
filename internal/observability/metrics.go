package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holdengine_holds_created_total",
			Help: "Total holds created",
		},
	)

	HoldsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdengine_holds_released_total",
			Help: "Total holds released, by reason",
		},
		[]string{"reason"},
	)

	HoldsConverted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holdengine_holds_converted_total",
			Help: "Total holds converted into bookings",
		},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holdengine_quota_rejections_total",
			Help: "Hold requests rejected by the quota cap",
		},
	)

	ActiveHoldUnits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holdengine_active_hold_units",
			Help: "Units currently under an active hold",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holdengine_sweep_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holdengine_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holdengine_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
