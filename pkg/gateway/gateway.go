package gateway

import "context"

// Gateway is the provider surface used by the billing core.
type Gateway interface {
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	GetPaymentMethod(ctx context.Context, paymentMethodID string) (*PaymentMethod, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error

	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// LatestCharge returns the most recent charge of a customer, or ErrNotFound.
	LatestCharge(ctx context.Context, customerID string) (*Charge, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	ListRefunds(ctx context.Context, paymentIntentID string) ([]Refund, error)
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)

	// VerifyEvent checks the signature header against the raw payload.
	// Any failure is reported as ErrInvalidSignature.
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
}
