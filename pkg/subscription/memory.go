package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps tenants in process memory. Used by tests and local runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*Tenant
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tenants: make(map[uuid.UUID]*Tenant)}
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	t, err := r.GetIncludingDeleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.IsDeleted() {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

func (r *MemoryRepository) GetIncludingDeleted(_ context.Context, id uuid.UUID) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t.Clone(), nil
}

func (r *MemoryRepository) FindByCustomerID(_ context.Context, customerID string) (*Tenant, error) {
	return r.find(func(t *Tenant) bool {
		return customerID != "" && t.Subscription.CustomerID == customerID
	})
}

func (r *MemoryRepository) FindBySubscriptionID(_ context.Context, subscriptionID string) (*Tenant, error) {
	return r.find(func(t *Tenant) bool {
		return subscriptionID != "" && t.Subscription.SubscriptionID == subscriptionID
	})
}

func (r *MemoryRepository) find(match func(*Tenant) bool) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tenants {
		if match(t) {
			return t.Clone(), nil
		}
	}
	return nil, ErrTenantNotFound
}

func (r *MemoryRepository) Insert(_ context.Context, t *Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[t.ID]; ok {
		return ErrTenantExists
	}
	r.tenants[t.ID] = t.Clone()
	return nil
}

func (r *MemoryRepository) CompareAndSet(_ context.Context, t *Tenant, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tenants[t.ID]
	if !ok {
		return ErrTenantNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}

	stored.Subscription = t.Subscription.Clone()
	stored.UpdatedAt = t.UpdatedAt
	stored.Version = expectedVersion + 1
	t.Version = stored.Version
	return nil
}

// SoftDelete marks a tenant deleted. Tenant CRUD lives elsewhere; this exists
// so local runs and tests can exercise the soft-delete filter.
func (r *MemoryRepository) SoftDelete(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.DeletedAt = &at
	return nil
}
