package billing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "billing"

// Metric label values.
const (
	resultOK        = "ok"
	resultError     = "error"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
	resultRejected  = "rejected"
	resultBlocked   = "blocked"

	outcomeCreated  = "created"
	outcomeAdopted  = "adopted"
	outcomeNone     = "none"
	outcomeFailed   = "failed"
	outcomeMismatch = "mismatch"
)

// Metrics holds the billing collectors. A nil *Metrics is a no-op.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	refunds         *prometheus.CounterVec
	refundedAmount  *prometheus.CounterVec
	cancellations   *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	storeConflicts  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses a private registry, which keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Provider webhook events by type and processing result.",
		}, []string{"type", "result"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "webhook",
			Name:      "duration_seconds",
			Help:      "Time spent handling a verified webhook event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "refund",
			Name:      "total",
			Help:      "Refund decisions by plan and outcome.",
		}, []string{"plan", "outcome"}),
		refundedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "refund",
			Name:      "amount_total",
			Help:      "Refunded amount in minor currency units.",
		}, []string{"plan"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cancel",
			Name:      "total",
			Help:      "Synchronous cancellation requests by result.",
		}, []string{"result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "checkout",
			Name:      "total",
			Help:      "Checkout attempts by plan and step.",
		}, []string{"plan", "step"}),
		storeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "conflicts_total",
			Help:      "Compare-and-set conflicts on tenant updates.",
		}),
	}

	reg.MustRegister(
		m.webhookEvents,
		m.webhookDuration,
		m.refunds,
		m.refundedAmount,
		m.cancellations,
		m.checkouts,
		m.storeConflicts,
	)
	return m
}

func (m *Metrics) webhook(eventType, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
	if elapsed > 0 {
		m.webhookDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) refund(plan, outcome string, amount int64) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(plan, outcome).Inc()
	if outcome == outcomeCreated && amount > 0 {
		m.refundedAmount.WithLabelValues(plan).Add(float64(amount))
	}
}

func (m *Metrics) cancel(result string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(result).Inc()
}

func (m *Metrics) checkout(plan, step string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(plan, step).Inc()
}

// StoreConflict counts one compare-and-set conflict. Pass it to
// subscription.WithConflictHook.
func (m *Metrics) StoreConflict() {
	if m == nil {
		return
	}
	m.storeConflicts.Inc()
}
