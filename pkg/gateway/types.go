package gateway

import (
	"encoding/json"
	"time"
)

// Event types the billing service reacts to.
const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventInvoicePaymentSucceeded     = "invoice.payment_succeeded"
	EventInvoicePaymentFailed        = "invoice.payment_failed"
	EventCustomerSubscriptionUpdated = "customer.subscription.updated"
	EventCustomerSubscriptionDeleted = "customer.subscription.deleted"
	EventChargeRefunded              = "charge.refunded"
)

// Metadata keys written on provider objects.
const (
	MetadataTenantID = "tenantId"
	MetadataPlan     = "plan"
	MetadataCustomer = "customer"
)

// CheckoutMode is the kind of hosted checkout flow.
type CheckoutMode string

const (
	CheckoutModeSetup        CheckoutMode = "setup"
	CheckoutModePayment      CheckoutMode = "payment"
	CheckoutModeSubscription CheckoutMode = "subscription"
)

// Subscription statuses reported by the provider.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusCanceled = "canceled"
)

// Event is a verified webhook delivery.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	// Object is the raw data.object payload.
	Object json.RawMessage
}

type Customer struct {
	ID                     string
	Email                  string
	Name                   string
	Deleted                bool
	DefaultPaymentMethodID string
	Metadata               map[string]string
}

type PaymentMethod struct {
	ID           string
	CustomerID   string
	BillingEmail string
}

type CheckoutSession struct {
	ID              string
	URL             string
	Mode            CheckoutMode
	CustomerID      string
	CustomerEmail   string
	PaymentIntentID string
	AmountTotal     int64
	// AmountReceived is set when the payment intent was expanded.
	AmountReceived int64
	// SetupPaymentMethodID is the card saved by a setup session.
	SetupPaymentMethodID string
	SubscriptionID       string
	Metadata             map[string]string
}

type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	Metadata           map[string]string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	// Latest invoice details, present when expanded.
	LatestInvoiceID       string
	LatestAmountPaid      int64
	LatestPaymentIntentID string
}

// Invoice is the subset of an invoice payload the webhook handlers read.
type Invoice struct {
	ID              string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	AmountPaid      int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	// SubscriptionMetadata is copied from subscription_details when present.
	SubscriptionMetadata map[string]string
}

type PaymentIntent struct {
	ID             string
	CustomerID     string
	Status         string
	Amount         int64
	AmountReceived int64
	Metadata       map[string]string
}

type Charge struct {
	ID              string
	CustomerID      string
	PaymentIntentID string
	Amount          int64
	AmountRefunded  int64
	Created         time.Time
	Refunds         []Refund
	Metadata        map[string]string
}

type Refund struct {
	ID              string
	Amount          int64
	ChargeID        string
	PaymentIntentID string
	Status          string
	Created         time.Time
}

// CustomerParams creates a customer tagged with its tenant.
type CustomerParams struct {
	Email          string
	Name           string
	TenantID       string
	IdempotencyKey string
}

type CheckoutSessionParams struct {
	Mode       CheckoutMode
	CustomerID string
	// PriceID is required for payment and subscription modes.
	PriceID        string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type SubscriptionParams struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	Metadata        map[string]string
	IdempotencyKey  string
}

// RefundParams refunds either a payment intent or a charge.
type RefundParams struct {
	PaymentIntentID string
	ChargeID        string
	Amount          int64
	Metadata        map[string]string
	IdempotencyKey  string
}
