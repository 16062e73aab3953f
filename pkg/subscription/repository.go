package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists tenant records.
//
// Get hides soft-deleted tenants. GetIncludingDeleted and the provider-id
// lookups do not, because provider events (refunds, cancellations) must still
// land on a tenant that deleted its account.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetIncludingDeleted(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCustomerID(ctx context.Context, customerID string) (*Tenant, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error)
	Insert(ctx context.Context, t *Tenant) error

	// CompareAndSet writes t.Subscription only if the stored version equals
	// expectedVersion, then sets t.Version to expectedVersion+1.
	// Returns ErrVersionConflict when the version moved.
	CompareAndSet(ctx context.Context, t *Tenant, expectedVersion int64) error
}
