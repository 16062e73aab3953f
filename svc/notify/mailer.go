package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/billingkit/pkg/email"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/svc/billing"
)

// Mailer renders notifications and sends them.
type Mailer struct {
	sender  email.EmailSender
	catalog *subscription.Catalog
	cfg     Config
	views   Views
	log     *slog.Logger
}

type MailerOption func(*Mailer)

func WithMailerLogger(l *slog.Logger) MailerOption {
	return func(m *Mailer) {
		if l != nil {
			m.log = l
		}
	}
}

func WithConfig(cfg Config) MailerOption {
	return func(m *Mailer) {
		if cfg.ProductName != "" {
			m.cfg.ProductName = cfg.ProductName
		}
		if cfg.DashboardURL != "" {
			m.cfg.DashboardURL = cfg.DashboardURL
		}
	}
}

// WithViews replaces the built-in bodies for the non-nil fields of v.
func WithViews(v Views) MailerOption {
	return func(m *Mailer) {
		m.views = m.views.merge(v)
	}
}

func NewMailer(sender email.EmailSender, catalog *subscription.Catalog, opts ...MailerOption) *Mailer {
	if sender == nil || catalog == nil {
		panic("notify: sender and catalog are required")
	}
	m := &Mailer{
		sender:  sender,
		catalog: catalog,
		cfg:     Config{ProductName: "Billingkit"},
		views:   DefaultViews(),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler returns the queue handler for billing.Notification tasks.
func (m *Mailer) Handler() queue.Handler {
	return queue.NewTaskHandler(m.Send)
}

// Send renders and sends one notification. An unknown event or a missing
// recipient is logged and dropped, since retrying cannot fix either.
func (m *Mailer) Send(ctx context.Context, n billing.Notification) error {
	log := m.log.With(logger.TenantID(n.TenantID), slog.String("event", string(n.Event)))

	view, ok := m.views.body(n.Event)
	if !ok {
		log.WarnContext(ctx, "notification dropped", logger.Error(ErrUnknownEvent))
		return nil
	}
	if n.Email == "" {
		log.WarnContext(ctx, "notification dropped", logger.Error(ErrMissingRecipient))
		return nil
	}

	msg := m.message(n)
	body, err := email.Render(ctx, view(msg))
	if err != nil {
		return fmt.Errorf("render %s: %w", n.Event, err)
	}
	if err := m.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   n.Email,
		Subject:  subjects[n.Event](msg),
		BodyHTML: body,
		Tag:      string(n.Event),
	}); err != nil {
		return err
	}

	log.InfoContext(ctx, "notification sent")
	return nil
}

func (m *Mailer) message(n billing.Notification) Message {
	msg := Message{
		Product:      m.cfg.ProductName,
		Name:         n.Name,
		PlanName:     n.Plan,
		RefundID:     n.RefundID,
		DashboardURL: m.cfg.DashboardURL,
	}
	currency := "usd"
	if info, err := m.catalog.Lookup(subscription.Plan(n.Plan)); err == nil {
		if info.Name != "" {
			msg.PlanName = info.Name
		}
		if info.Currency != "" {
			currency = info.Currency
		}
	}
	if n.Amount > 0 {
		msg.Amount = formatAmount(n.Amount, currency)
	}
	return msg
}

// formatAmount renders minor units with two decimals and the currency code.
func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, strings.ToUpper(currency))
}
