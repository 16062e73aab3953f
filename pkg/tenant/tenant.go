package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Tenant is the request-scoped view of a tenant.
type Tenant struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Provider loads a tenant by ID. Implementations return ErrTenantNotFound
// when no tenant matches.
type Provider interface {
	Lookup(ctx context.Context, id uuid.UUID) (*Tenant, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id uuid.UUID) (*Tenant, error)

func (f ProviderFunc) Lookup(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return f(ctx, id)
}
