package billing

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/pkg/redis"
)

// Deduper drops repeated deliveries of the same provider event before any
// provider or store work happens. It is an optimisation only: handlers stay
// idempotent through the subscription markers.
//
// A claim starts as a short lease. Only Commit, called after the handler
// succeeded, holds the event ID for the full ttl. A process that dies
// mid-handler therefore blocks redeliveries for the lease at most.
type Deduper interface {
	// Claim reports true the first time an event ID is seen.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Commit marks a claimed event as processed.
	Commit(ctx context.Context, eventID string) error
	// Release forgets an event so a redelivery is processed again.
	Release(ctx context.Context, eventID string) error
}

// DefaultClaimLease bounds how long an in-flight delivery blocks its
// redeliveries. It comfortably exceeds the provider's webhook timeout.
const DefaultClaimLease = 5 * time.Minute

const webhookClaimPrefix = "billing:webhook:"

// DedupOption configures a Deduper.
type DedupOption func(*dedupOptions)

type dedupOptions struct {
	lease time.Duration
}

// WithClaimLease overrides DefaultClaimLease.
func WithClaimLease(d time.Duration) DedupOption {
	return func(o *dedupOptions) {
		if d > 0 {
			o.lease = d
		}
	}
}

func leaseFor(ttl time.Duration, opts []DedupOption) time.Duration {
	o := dedupOptions{lease: DefaultClaimLease}
	for _, opt := range opts {
		opt(&o)
	}
	return min(o.lease, ttl)
}

// NewRedisDeduper claims event IDs with SETNX, so replicas share one view.
func NewRedisDeduper(client goredis.UniversalClient, ttl time.Duration, opts ...DedupOption) Deduper {
	return redis.NewClaims(client, webhookClaimPrefix, ttl, redis.WithLease(leaseFor(ttl, opts)))
}

// MemoryDeduper is a single-process Deduper.
type MemoryDeduper struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	lease time.Duration
	now   func() time.Time
}

func NewMemoryDeduper(ttl time.Duration, opts ...DedupOption) *MemoryDeduper {
	return &MemoryDeduper{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		lease: leaseFor(ttl, opts),
		now:   time.Now,
	}
}

func (d *MemoryDeduper) Claim(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[eventID] = now.Add(d.lease)

	// Sweep lazily to bound memory.
	if len(d.seen) > 10_000 {
		for id, exp := range d.seen {
			if !now.Before(exp) {
				delete(d.seen, id)
			}
		}
	}
	return true, nil
}

func (d *MemoryDeduper) Commit(_ context.Context, eventID string) error {
	d.mu.Lock()
	d.seen[eventID] = d.now().Add(d.ttl)
	d.mu.Unlock()
	return nil
}

func (d *MemoryDeduper) Release(_ context.Context, eventID string) error {
	d.mu.Lock()
	delete(d.seen, eventID)
	d.mu.Unlock()
	return nil
}

type nopDeduper struct{}

func (nopDeduper) Claim(context.Context, string) (bool, error) { return true, nil }
func (nopDeduper) Commit(context.Context, string) error        { return nil }
func (nopDeduper) Release(context.Context, string) error       { return nil }
