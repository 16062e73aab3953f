package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Plan is the billing tier of a tenant.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// ParsePlan accepts plan names case-insensitively ("Pro", "pro").
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return p, nil
}

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// IsPaid reports whether the plan is billed through the provider.
func (p Plan) IsPaid() bool {
	return p == PlanPro || p == PlanEnterprise
}

// IsRecurring reports whether the plan is billed as a provider subscription.
// Enterprise is a one-time charge.
func (p Plan) IsRecurring() bool {
	return p == PlanPro
}

func (p Plan) String() string { return string(p) }

// Status mirrors the provider subscription status values the service tracks.
type Status string

const (
	StatusActive     Status = "active"
	StatusCanceled   Status = "canceled"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusIncomplete Status = "incomplete"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCanceled, StatusTrialing, StatusPastDue, StatusIncomplete:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Refund is the record of the refund issued for the current cancellation.
type Refund struct {
	ID         string    `json:"refund_id" bson:"refund_id"`
	Amount     int64     `json:"amount" bson:"amount"`
	RefundedAt time.Time `json:"refunded_at" bson:"refunded_at"`
}

// Subscription is embedded in the tenant record. Empty strings stand for
// absent provider identifiers.
type Subscription struct {
	Plan   Plan   `json:"plan" bson:"plan"`
	Status Status `json:"status" bson:"status"`

	CustomerID             string `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	SubscriptionID         string `json:"subscription_id,omitempty" bson:"subscription_id,omitempty"`
	PaymentIntentID        string `json:"payment_intent_id,omitempty" bson:"payment_intent_id,omitempty"`
	CheckoutSessionID      string `json:"checkout_session_id,omitempty" bson:"checkout_session_id,omitempty"`
	DefaultPaymentMethodID string `json:"default_payment_method_id,omitempty" bson:"default_payment_method_id,omitempty"`
	BillingEmail           string `json:"billing_email,omitempty" bson:"billing_email,omitempty"`

	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty" bson:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty" bson:"current_period_end,omitempty"`

	// AmountPaid is in minor currency units.
	AmountPaid int64   `json:"amount_paid" bson:"amount_paid"`
	LastRefund *Refund `json:"last_refund,omitempty" bson:"last_refund,omitempty"`

	LastInvoiceIDSent       string `json:"last_invoice_id_sent,omitempty" bson:"last_invoice_id_sent,omitempty"`
	LastPaymentIntentIDSent string `json:"last_payment_intent_id_sent,omitempty" bson:"last_payment_intent_id_sent,omitempty"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

// Validate checks the invariants every persisted subscription must hold.
func (s Subscription) Validate() error {
	if !s.Plan.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPlan, s.Plan)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	if s.AmountPaid < 0 {
		return ErrNegativeAmount
	}
	if s.LastRefund != nil {
		if s.LastRefund.Amount < 0 {
			return ErrNegativeAmount
		}
		if s.AmountPaid > 0 && s.LastRefund.Amount > s.AmountPaid {
			return ErrRefundExceedsPaid
		}
	}
	if s.Status == StatusCanceled && s.SubscriptionID != "" {
		return ErrCanceledWithSubID
	}
	return nil
}

// IsActivePaid reports whether the tenant currently holds an active paid plan.
func (s Subscription) IsActivePaid() bool {
	return s.Status == StatusActive && s.Plan.IsPaid()
}

// Clone returns a deep copy so mutations never alias the stored value.
func (s Subscription) Clone() Subscription {
	c := s
	if s.LastRefund != nil {
		r := *s.LastRefund
		c.LastRefund = &r
	}
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	c.CancelledAt = cloneTime(s.CancelledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Tenant is the persisted tenant record. Only the fields billing needs are modelled.
type Tenant struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Subscription Subscription `json:"subscription"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	DeletedAt    *time.Time   `json:"deleted_at,omitempty"`
}

// NewTenant returns a tenant on the free plan with an active status.
func NewTenant(name, email string) *Tenant {
	now := time.Now().UTC()
	return &Tenant{
		ID:    uuid.New(),
		Name:  name,
		Email: email,
		Subscription: Subscription{
			Plan:   PlanFree,
			Status: StatusActive,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the tenant.
func (t *Tenant) Clone() *Tenant {
	c := *t
	c.Subscription = t.Subscription.Clone()
	c.DeletedAt = cloneTime(t.DeletedAt)
	return &c
}

// IsDeleted reports whether the tenant was soft-deleted.
func (t *Tenant) IsDeleted() bool {
	return t.DeletedAt != nil
}
