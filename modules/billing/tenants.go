package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/tenant"
)

// TenantGetter is the read the tenant middleware needs from the store.
type TenantGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*subscription.Tenant, error)
}

// StoreTenants resolves request tenants from the subscription store.
func StoreTenants(store TenantGetter) tenant.Provider {
	return tenant.ProviderFunc(func(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
		t, err := store.Get(ctx, id)
		if errors.Is(err, subscription.ErrTenantNotFound) {
			return nil, errors.Join(tenant.ErrTenantNotFound, err)
		}
		if err != nil {
			return nil, err
		}
		return &tenant.Tenant{ID: t.ID, Name: t.Name}, nil
	})
}
