package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Mutation changes a subscription in place. It must be free of side effects:
// on a version conflict it runs again against a fresh copy.
type Mutation func(sub *Subscription) error

// Marker names the idempotency field an event class is tracked by.
type Marker string

const (
	MarkerInvoice       Marker = "invoice"
	MarkerPaymentIntent Marker = "payment_intent"
	MarkerRefund        Marker = "refund"
)

// EventKey identifies a provider event for ApplyIfNewEvent.
type EventKey struct {
	Marker Marker
	ID     string
}

// Seen reports whether sub already carries this key.
func (k EventKey) Seen(sub *Subscription) bool {
	if k.ID == "" {
		return false
	}
	switch k.Marker {
	case MarkerInvoice:
		return sub.LastInvoiceIDSent == k.ID
	case MarkerPaymentIntent:
		return sub.LastPaymentIntentIDSent == k.ID
	case MarkerRefund:
		return sub.LastRefund != nil && sub.LastRefund.ID == k.ID
	}
	return false
}

func (k EventKey) mark(sub *Subscription, now time.Time) {
	switch k.Marker {
	case MarkerInvoice:
		sub.LastInvoiceIDSent = k.ID
	case MarkerPaymentIntent:
		sub.LastPaymentIntentIDSent = k.ID
	case MarkerRefund:
		if sub.LastRefund == nil {
			sub.LastRefund = &Refund{RefundedAt: now}
		}
		sub.LastRefund.ID = k.ID
	}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxRetries bounds how many times a conflicting update is retried.
func WithMaxRetries(n int) StoreOption {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConflictHook is called on every version conflict. Used for metrics.
func WithConflictHook(fn func()) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.onConflict = fn
		}
	}
}

// Store is the single writer of tenant subscriptions.
type Store struct {
	repo       Repository
	maxRetries int
	now        func() time.Time
	log        *slog.Logger
	onConflict func()
}

// NewStore panics on a nil repository.
func NewStore(repo Repository, opts ...StoreOption) *Store {
	if repo == nil {
		panic("subscription: repository is required")
	}
	s := &Store{
		repo:       repo,
		maxRetries: 5,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Discard(),
		onConflict: func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(ctx context.Context, tenantID uuid.UUID) (*Tenant, error) {
	return s.repo.Get(ctx, tenantID)
}

func (s *Store) GetByCustomerID(ctx context.Context, customerID string) (*Tenant, error) {
	if customerID == "" {
		return nil, ErrTenantNotFound
	}
	return s.repo.FindByCustomerID(ctx, customerID)
}

func (s *Store) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error) {
	if subscriptionID == "" {
		return nil, ErrTenantNotFound
	}
	return s.repo.FindBySubscriptionID(ctx, subscriptionID)
}

// Insert stores a new tenant.
func (s *Store) Insert(ctx context.Context, t *Tenant) error {
	if err := t.Subscription.Validate(); err != nil {
		return err
	}
	return s.repo.Insert(ctx, t)
}

// Update applies mutate and persists the result with compare-and-set.
// A mutation returning ErrSkip leaves the tenant untouched; the stored tenant
// is returned with a nil error.
func (s *Store) Update(ctx context.Context, tenantID uuid.UUID, mutate Mutation) (*Tenant, error) {
	t, _, err := s.apply(ctx, tenantID, nil, mutate)
	return t, err
}

// ApplyIfNewEvent runs mutate only if the marker named by key does not already
// hold key.ID, then writes the new state and the marker together. applied is
// false for a duplicate or a skipped mutation.
func (s *Store) ApplyIfNewEvent(ctx context.Context, tenantID uuid.UUID, key EventKey, mutate Mutation) (t *Tenant, applied bool, err error) {
	return s.apply(ctx, tenantID, &key, mutate)
}

func (s *Store) apply(ctx context.Context, tenantID uuid.UUID, key *EventKey, mutate Mutation) (*Tenant, bool, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		current, err := s.repo.GetIncludingDeleted(ctx, tenantID)
		if err != nil {
			return nil, false, err
		}

		if key != nil && key.Seen(&current.Subscription) {
			s.log.DebugContext(ctx, "duplicate event skipped",
				logger.TenantID(tenantID),
				slog.String("marker", string(key.Marker)),
				logger.EventID(key.ID),
			)
			return current, false, nil
		}

		next := current.Subscription.Clone()
		if err := mutate(&next); err != nil {
			if errors.Is(err, ErrSkip) {
				return current, false, nil
			}
			return nil, false, err
		}

		now := s.now()
		if key != nil {
			key.mark(&next, now)
		}
		if err := next.Validate(); err != nil {
			return nil, false, fmt.Errorf("subscription %s: %w", tenantID, err)
		}

		updated := current.Clone()
		updated.Subscription = next
		updated.UpdatedAt = now

		err = s.repo.CompareAndSet(ctx, updated, current.Version)
		if errors.Is(err, ErrVersionConflict) {
			s.onConflict()
			s.log.DebugContext(ctx, "subscription update conflict, retrying",
				logger.TenantID(tenantID),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return updated, true, nil
	}
	return nil, false, errors.Join(ErrTooManyConflicts, ErrVersionConflict)
}
