package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claims records first-come claims on keys. A fresh claim is a lease that
// lapses on its own unless Commit extends it to the full ttl.
type Claims struct {
	db     redis.UniversalClient
	prefix string
	ttl    time.Duration
	lease  time.Duration
}

// ClaimOption configures Claims.
type ClaimOption func(*Claims)

// WithLease sets how long an uncommitted claim is held. It is capped at the
// claim ttl. Without it a claim is held for the full ttl from the start.
func WithLease(d time.Duration) ClaimOption {
	return func(c *Claims) {
		if d > 0 {
			c.lease = d
		}
	}
}

// NewClaims panics on a nil client or a non-positive ttl.
func NewClaims(db redis.UniversalClient, prefix string, ttl time.Duration, opts ...ClaimOption) *Claims {
	if db == nil {
		panic("redis: client is required")
	}
	if ttl <= 0 {
		panic("redis: claim ttl must be positive")
	}
	c := &Claims{db: db, prefix: prefix, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	if c.lease <= 0 || c.lease > ttl {
		c.lease = ttl
	}
	return c
}

// Claim reports true for the first caller of a key within the lease.
func (c *Claims) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	ok, err := c.db.SetNX(ctx, c.prefix+key, time.Now().UTC().Unix(), c.lease).Result()
	if err != nil {
		return false, errors.Join(ErrClaimFailed, err)
	}
	return ok, nil
}

// Commit holds key for the full ttl. The key is written even if its lease
// already lapsed.
func (c *Claims) Commit(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := c.db.Set(ctx, c.prefix+key, time.Now().UTC().Unix(), c.ttl).Err(); err != nil {
		return errors.Join(ErrClaimFailed, err)
	}
	return nil
}

// Release drops a claim so the key can be claimed again.
func (c *Claims) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := c.db.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Join(ErrClaimFailed, err)
	}
	return nil
}

// Claimed reports whether key is currently held.
func (c *Claims) Claimed(ctx context.Context, key string) (bool, error) {
	n, err := c.db.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, errors.Join(ErrClaimFailed, err)
	}
	return n > 0, nil
}
