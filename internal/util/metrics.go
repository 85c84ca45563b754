package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_held_total",
		Help: "Total number of holds placed",
	})

	ReservationHoldFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_hold_failures_total",
		Help: "Total number of rejected holds",
	}, []string{"reason"})

	ReservationsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_confirmed_total",
		Help: "Total number of holds confirmed",
	})

	ReservationsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_released_total",
		Help: "Total number of holds released",
	})

	ReservationsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Total number of holds expired",
	}, []string{"path"})

	SlotAdjustLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slot_adjust_latency_seconds",
		Help:    "Latency of capacity-mutating slot adjustments",
		Buckets: prometheus.DefBuckets,
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_sweep_duration_seconds",
		Help:    "Duration of expiry sweeps",
		Buckets: prometheus.DefBuckets,
	})

	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_sweep_errors_total",
		Help: "Total number of reservations a sweep failed to expire",
	})

	BulkUpdateDatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_update_dates_total",
		Help: "Dates processed by bulk range edits",
	}, []string{"result"})

	AvailabilityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_checks_total",
		Help: "Total number of availability queries",
	}, []string{"kind"})

	AvailabilityCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_cache_total",
		Help: "Availability slot cache lookups",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
