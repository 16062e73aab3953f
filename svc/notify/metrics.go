package notify

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/billingkit/pkg/queue"
)

// Metrics counts queue task outcomes for notification delivery.
type Metrics struct {
	tasks *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Subsystem: "notify",
			Name:      "tasks_total",
			Help:      "Notification tasks by outcome: completed, pending (retry) or failed (dead letter).",
		}, []string{"task", "status"}),
	}
	reg.MustRegister(m.tasks)
	return m
}

// TaskResult has the queue.ResultHook signature.
func (m *Metrics) TaskResult(taskName string, status queue.TaskStatus) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(taskName, string(status)).Inc()
}
