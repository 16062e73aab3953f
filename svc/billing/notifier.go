package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// NotificationEvent names a tenant-facing billing notification.
type NotificationEvent string

const (
	NotifySubscriptionInvoice   NotificationEvent = "subscription_invoice"
	NotifyPlanActivated         NotificationEvent = "plan_activated"
	NotifyPaymentFailed         NotificationEvent = "payment_failed"
	NotifySubscriptionCancelled NotificationEvent = "subscription_cancelled"
)

// Notification is emitted after a billing state change has been persisted.
type Notification struct {
	Event    NotificationEvent `json:"event"`
	TenantID uuid.UUID         `json:"tenant_id"`
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	Plan     string            `json:"plan,omitempty"`
	Amount   int64             `json:"amount,omitempty"`
	RefundID string            `json:"refund_id,omitempty"`
}

// Notifier delivers notifications. Implementations should hand off quickly;
// the queue-backed notifier lives in svc/notify.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier only logs. It is the default when no notifier is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "billing notification",
		slog.String("event", string(n.Event)),
		logger.TenantID(n.TenantID),
		logger.Plan(n.Plan),
		logger.Amount(n.Amount),
	)
	return nil
}
