package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/billingkit/svc/billing"
)

// Message is the data every notification view renders from. Amount is
// already formatted and empty when nothing was charged or refunded.
type Message struct {
	Product      string
	Name         string
	PlanName     string
	Amount       string
	RefundID     string
	DashboardURL string
}

// Views renders notification bodies. Applications with their own .templ
// components plug them in with WithViews; nil fields keep the defaults.
type Views struct {
	SubscriptionInvoice   func(Message) templ.Component
	PlanActivated         func(Message) templ.Component
	PaymentFailed         func(Message) templ.Component
	SubscriptionCancelled func(Message) templ.Component
}

// DefaultViews returns the built-in plain HTML bodies.
func DefaultViews() Views {
	return Views{
		SubscriptionInvoice: func(m Message) templ.Component {
			return layout(m, paragraphs(
				fmt.Sprintf("We received your payment of %s for the %s plan.", m.Amount, m.PlanName),
				"Your subscription is active.",
			))
		},
		PlanActivated: func(m Message) templ.Component {
			return layout(m, paragraphs(fmt.Sprintf("Your workspace is now on the %s plan.", m.PlanName)))
		},
		PaymentFailed: func(m Message) templ.Component {
			return layout(m, paragraphs(
				fmt.Sprintf("We could not charge your card for the %s plan.", m.PlanName),
				"Please update your payment method to keep your subscription.",
			))
		},
		SubscriptionCancelled: func(m Message) templ.Component {
			lines := []string{fmt.Sprintf("Your %s subscription has been cancelled.", m.PlanName)}
			if m.Amount != "" {
				lines = append(lines, fmt.Sprintf("A refund of %s is on its way (reference %s).", m.Amount, m.RefundID))
			}
			return layout(m, paragraphs(lines...))
		},
	}
}

func (v Views) merge(o Views) Views {
	if o.SubscriptionInvoice != nil {
		v.SubscriptionInvoice = o.SubscriptionInvoice
	}
	if o.PlanActivated != nil {
		v.PlanActivated = o.PlanActivated
	}
	if o.PaymentFailed != nil {
		v.PaymentFailed = o.PaymentFailed
	}
	if o.SubscriptionCancelled != nil {
		v.SubscriptionCancelled = o.SubscriptionCancelled
	}
	return v
}

func (v Views) body(event billing.NotificationEvent) (func(Message) templ.Component, bool) {
	switch event {
	case billing.NotifySubscriptionInvoice:
		return v.SubscriptionInvoice, true
	case billing.NotifyPlanActivated:
		return v.PlanActivated, true
	case billing.NotifyPaymentFailed:
		return v.PaymentFailed, true
	case billing.NotifySubscriptionCancelled:
		return v.SubscriptionCancelled, true
	}
	return nil, false
}

var subjects = map[billing.NotificationEvent]func(Message) string{
	billing.NotifySubscriptionInvoice: func(m Message) string {
		return fmt.Sprintf("Payment received for %s %s", m.Product, m.PlanName)
	},
	billing.NotifyPlanActivated: func(m Message) string {
		return fmt.Sprintf("Your %s plan is active", m.PlanName)
	},
	billing.NotifyPaymentFailed: func(m Message) string {
		return fmt.Sprintf("Payment failed for %s", m.Product)
	},
	billing.NotifySubscriptionCancelled: func(m Message) string {
		return fmt.Sprintf("Your %s subscription was cancelled", m.PlanName)
	},
}

func layout(m Message, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		greeting := "Hello,"
		if m.Name != "" {
			greeting = "Hello " + m.Name + ","
		}
		if _, err := fmt.Fprintf(w,
			`<!doctype html><html><body style="font-family:sans-serif"><h2>%s</h2><p>%s</p>`,
			templ.EscapeString(m.Product), templ.EscapeString(greeting)); err != nil {
			return err
		}
		if err := content.Render(ctx, w); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, `<p><a href="%s">Manage billing</a></p></body></html>`,
			templ.EscapeString(m.DashboardURL))
		return err
	})
}

func paragraphs(lines ...string) templ.Component {
	parts := make([]templ.Component, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, templ.Raw("<p>"+templ.EscapeString(l)+"</p>"))
	}
	return templ.Join(parts...)
}
