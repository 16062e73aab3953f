package billing

import (
	"errors"

	billingsvc "github.com/dmitrymomot/billingkit/svc/billing"

	"github.com/dmitrymomot/billingkit/handler"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

var badRequest = []error{
	billingsvc.ErrInvalidPlan,
	billingsvc.ErrBillingEmailRequired,
	billingsvc.ErrEmailMismatch,
	billingsvc.ErrPaymentMethodOwned,
	billingsvc.ErrActiveSubscription,
	billingsvc.ErrPaymentMethodRequired,
	billingsvc.ErrNoActiveSubscription,
	billingsvc.ErrMissingSessionID,
	billingsvc.ErrCheckoutIncomplete,
	billingsvc.ErrRefundMismatch,
}

var notFound = []error{
	subscription.ErrTenantNotFound,
	billingsvc.ErrUnresolvedTenant,
}

// httpError attaches the response status to a service error. Provider and
// store failures, including a refund that was due but not produced, stay 500
// so the caller retries by hand.
func httpError(err error) error {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return handler.ErrBadRequest.Wrap(err)
		}
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return handler.ErrNotFound.Wrap(err)
		}
	}
	if errors.Is(err, subscription.ErrTooManyConflicts) {
		return handler.ErrConflict.Wrap(err)
	}
	return err
}
