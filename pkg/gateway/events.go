package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
)

// objectHeader is read first to reject payloads of the wrong kind.
type objectHeader struct {
	Object string `json:"object"`
}

func decodeObject(ev *Event, kind string, into any) error {
	if ev == nil || len(ev.Object) == 0 {
		return ErrDecodeEvent
	}
	var h objectHeader
	if err := json.Unmarshal(ev.Object, &h); err != nil {
		return errors.Join(ErrDecodeEvent, err)
	}
	if h.Object != "" && h.Object != kind {
		return fmt.Errorf("%w: want %s, got %s", ErrUnexpectedObject, kind, h.Object)
	}
	if err := json.Unmarshal(ev.Object, into); err != nil {
		return errors.Join(ErrDecodeEvent, fmt.Errorf("%s %s: %w", ev.Type, kind, err))
	}
	return nil
}

// DecodeCheckoutSession reads a checkout.session payload.
func DecodeCheckoutSession(ev *Event) (*CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := decodeObject(ev, "checkout.session", &s); err != nil {
		return nil, err
	}
	return toCheckoutSession(&s), nil
}

func DecodeSubscription(ev *Event) (*Subscription, error) {
	var s stripe.Subscription
	if err := decodeObject(ev, "subscription", &s); err != nil {
		return nil, err
	}
	return toSubscription(&s), nil
}

func DecodeCharge(ev *Event) (*Charge, error) {
	var c stripe.Charge
	if err := decodeObject(ev, "charge", &c); err != nil {
		return nil, err
	}
	return toCharge(&c), nil
}

// invoiceOverlay carries fields newer API versions moved under parent.
type invoiceOverlay struct {
	Parent *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Payments            *struct {
		Data []struct {
			Payment *struct {
				PaymentIntent expandableID `json:"payment_intent"`
			} `json:"payment"`
		} `json:"data"`
	} `json:"payments"`
}

type subscriptionDetails struct {
	Subscription expandableID      `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// expandableID accepts either a bare id or an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*e = expandableID(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

// DecodeInvoice reads an invoice payload. The subscription id is taken from
// invoice.subscription, falling back to parent.subscription_details; the
// period comes from the first line item.
func DecodeInvoice(ev *Event) (*Invoice, error) {
	var inv stripe.Invoice
	if err := decodeObject(ev, "invoice", &inv); err != nil {
		return nil, err
	}
	var extra invoiceOverlay
	if err := json.Unmarshal(ev.Object, &extra); err != nil {
		return nil, errors.Join(ErrDecodeEvent, err)
	}

	out := &Invoice{
		ID:              inv.ID,
		CustomerID:      customerID(inv.Customer),
		PaymentIntentID: paymentIntentID(inv.PaymentIntent),
		AmountPaid:      inv.AmountPaid,
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
		out.SubscriptionMetadata = inv.Subscription.Metadata
	}

	details := extra.SubscriptionDetails
	if extra.Parent != nil && extra.Parent.SubscriptionDetails != nil {
		details = extra.Parent.SubscriptionDetails
	}
	if details != nil {
		if out.SubscriptionID == "" {
			out.SubscriptionID = string(details.Subscription)
		}
		if len(details.Metadata) > 0 {
			out.SubscriptionMetadata = details.Metadata
		}
	}
	if out.PaymentIntentID == "" && extra.Payments != nil {
		for _, p := range extra.Payments.Data {
			if p.Payment != nil && p.Payment.PaymentIntent != "" {
				out.PaymentIntentID = string(p.Payment.PaymentIntent)
				break
			}
		}
	}

	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		out.PeriodStart = unix(inv.Lines.Data[0].Period.Start)
		out.PeriodEnd = unix(inv.Lines.Data[0].Period.End)
	} else {
		out.PeriodStart = unix(inv.PeriodStart)
		out.PeriodEnd = unix(inv.PeriodEnd)
	}
	return out, nil
}
