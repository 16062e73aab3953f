package subscription

import "errors"

var (
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrTenantExists     = errors.New("tenant already exists")
	ErrVersionConflict  = errors.New("tenant was modified concurrently")
	ErrTooManyConflicts = errors.New("tenant update retries exhausted")

	ErrInvalidPlan        = errors.New("invalid subscription plan")
	ErrInvalidStatus      = errors.New("invalid subscription status")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrRefundExceedsPaid  = errors.New("refund amount exceeds amount paid")
	ErrCanceledWithSubID  = errors.New("canceled subscription must not keep a provider subscription id")
	ErrPlanNotInCatalog   = errors.New("plan not found in catalog")
	ErrInvalidCatalog     = errors.New("invalid plan catalog")
	ErrInvalidTransition  = errors.New("invalid subscription status transition")
	ErrMissingPeriodStart = errors.New("current period start is required")

	// ErrSkip is returned by a Mutation to abort an update without writing.
	ErrSkip = errors.New("skip update")
)
