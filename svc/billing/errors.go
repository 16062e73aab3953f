package billing

import "errors"

var (
	ErrInvalidPlan           = errors.New("billing: invalid plan")
	ErrBillingEmailRequired  = errors.New("billing: billing email is required")
	ErrEmailMismatch         = errors.New("billing: payment method email does not match billing email")
	ErrPaymentMethodOwned    = errors.New("billing: payment method belongs to another customer")
	ErrActiveSubscription    = errors.New("billing: tenant already has an active paid subscription")
	ErrPaymentMethodRequired = errors.New("billing: payment method is required for a customer with a saved card")
	ErrNoActiveSubscription  = errors.New("billing: no active subscription to cancel")
	ErrMissingSessionID      = errors.New("billing: checkout session id is required")
	ErrCheckoutIncomplete    = errors.New("billing: checkout session has no payment")

	ErrRefundNotProduced = errors.New("billing: refund was required but not produced")
	ErrRefundMismatch    = errors.New("billing: refund amount does not match amount paid")

	ErrUnresolvedTenant = errors.New("billing: event does not reference a known tenant")
)
