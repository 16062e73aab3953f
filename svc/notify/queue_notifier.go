package notify

import (
	"context"

	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/svc/billing"
)

// QueueNotifier implements billing.Notifier by enqueueing a task per
// notification.
type QueueNotifier struct {
	enqueuer *queue.Enqueuer
	opts     []queue.EnqueueOption
}

// NewQueueNotifier panics on a nil enqueuer. opts apply to every task.
func NewQueueNotifier(enq *queue.Enqueuer, opts ...queue.EnqueueOption) *QueueNotifier {
	if enq == nil {
		panic("notify: enqueuer is required")
	}
	return &QueueNotifier{enqueuer: enq, opts: opts}
}

func (q *QueueNotifier) Notify(ctx context.Context, n billing.Notification) error {
	return q.enqueuer.Enqueue(ctx, n, q.opts...)
}

var _ billing.Notifier = (*QueueNotifier)(nil)
