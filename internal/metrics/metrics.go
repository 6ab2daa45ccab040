package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the booking sync engine.
type Metrics struct {
	WebhooksReceived    *prometheus.CounterVec
	ServicesProcessed   *prometheus.CounterVec
	UnknownEventKinds   *prometheus.CounterVec
	LedgerAdjustments   *prometheus.CounterVec
	Oversold            prometheus.Counter
	FlightsDeactivated  *prometheus.CounterVec
	UnmatchedSegments   prometheus.Counter
	AuditWriteFailures  prometheus.Counter
	UpstreamCallLatency *prometheus.HistogramVec
	ProcessingTime      prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhooksReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Booking webhooks received, by outcome",
		}, []string{"outcome"}),
		ServicesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "services_processed_total",
			Help:      "Transport services processed, by resulting action",
		}, []string{"action"}),
		UnknownEventKinds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_event_kinds_total",
			Help:      "Webhook deliveries whose event label matched no known kind, by missing or unrecognized",
		}, []string{"reason"}),
		LedgerAdjustments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_adjustments_total",
			Help:      "Passenger deltas applied to flight inventory, by direction",
		}, []string{"direction"}),
		Oversold: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_oversold_total",
			Help:      "Ledger updates clamped because the provider reported more passengers than seats",
		}),
		FlightsDeactivated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flights_deactivated_total",
			Help:      "Flights deactivated by the sold-out cascade, by target and result",
		}, []string{"target", "result"}),
		UnmatchedSegments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_segments_total",
			Help:      "Segments for which no local flight could be matched",
		}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Sync log entries that could not be persisted",
		}),
		UpstreamCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Latency of calls to the upstream reservation platform",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		ProcessingTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_processing_seconds",
			Help:      "Time taken to process one booking webhook",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewForTest returns metrics bound to a throwaway registry.
func NewForTest() *Metrics {
	return New("test", prometheus.NewRegistry())
}
