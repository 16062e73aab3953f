package gateway

import (
	"time"

	"github.com/stripe/stripe-go/v81"
)

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func paymentIntentID(pi *stripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ID
}

func toCustomer(c *stripe.Customer) *Customer {
	out := &Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Deleted:  c.Deleted,
		Metadata: c.Metadata,
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethodID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out
}

func toPaymentMethod(pm *stripe.PaymentMethod) *PaymentMethod {
	out := &PaymentMethod{ID: pm.ID, CustomerID: customerID(pm.Customer)}
	if pm.BillingDetails != nil {
		out.BillingEmail = pm.BillingDetails.Email
	}
	return out
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:              s.ID,
		URL:             s.URL,
		Mode:            CheckoutMode(s.Mode),
		CustomerID:      customerID(s.Customer),
		CustomerEmail:   s.CustomerEmail,
		PaymentIntentID: paymentIntentID(s.PaymentIntent),
		AmountTotal:     s.AmountTotal,
		Metadata:        s.Metadata,
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		out.AmountReceived = s.PaymentIntent.AmountReceived
	}
	if s.SetupIntent != nil && s.SetupIntent.PaymentMethod != nil {
		out.SetupPaymentMethodID = s.SetupIntent.PaymentMethod.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}

func toSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 s.ID,
		CustomerID:         customerID(s.Customer),
		Status:             string(s.Status),
		Metadata:           s.Metadata,
		CurrentPeriodStart: unix(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unix(s.CurrentPeriodEnd),
	}
	if inv := s.LatestInvoice; inv != nil {
		out.LatestInvoiceID = inv.ID
		out.LatestAmountPaid = inv.AmountPaid
		out.LatestPaymentIntentID = paymentIntentID(inv.PaymentIntent)
	}
	return out
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:             pi.ID,
		CustomerID:     customerID(pi.Customer),
		Status:         string(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Metadata:       pi.Metadata,
	}
}

func toRefund(r *stripe.Refund) Refund {
	out := Refund{
		ID:              r.ID,
		Amount:          r.Amount,
		PaymentIntentID: paymentIntentID(r.PaymentIntent),
		Status:          string(r.Status),
		Created:         unix(r.Created),
	}
	if r.Charge != nil {
		out.ChargeID = r.Charge.ID
	}
	return out
}

func toCharge(c *stripe.Charge) *Charge {
	out := &Charge{
		ID:              c.ID,
		CustomerID:      customerID(c.Customer),
		PaymentIntentID: paymentIntentID(c.PaymentIntent),
		Amount:          c.Amount,
		AmountRefunded:  c.AmountRefunded,
		Created:         unix(c.Created),
		Metadata:        c.Metadata,
	}
	if c.Refunds != nil {
		for _, r := range c.Refunds.Data {
			if r != nil {
				out.Refunds = append(out.Refunds, toRefund(r))
			}
		}
	}
	return out
}
