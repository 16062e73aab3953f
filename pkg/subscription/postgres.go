package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PostgresRepository stores the subscription as a JSONB column on the tenants table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectTenant = `SELECT id::text, name, email, subscription, version, created_at, updated_at, deleted_at FROM tenants `

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return r.queryOne(ctx, selectTenant+`WHERE id = $1 AND deleted_at IS NULL`, id.String())
}

func (r *PostgresRepository) GetIncludingDeleted(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return r.queryOne(ctx, selectTenant+`WHERE id = $1`, id.String())
}

func (r *PostgresRepository) FindByCustomerID(ctx context.Context, customerID string) (*Tenant, error) {
	return r.queryOne(ctx, selectTenant+`WHERE subscription->>'customer_id' = $1 LIMIT 1`, customerID)
}

func (r *PostgresRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error) {
	return r.queryOne(ctx, selectTenant+`WHERE subscription->>'subscription_id' = $1 LIMIT 1`, subscriptionID)
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*Tenant, error) {
	var (
		rawID   string
		rawSub  []byte
		deleted *time.Time
		t       Tenant
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&rawID, &t.Name, &t.Email, &rawSub, &t.Version, &t.CreatedAt, &t.UpdatedAt, &deleted,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("query tenant: %w", err)
	}

	if t.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("tenant id %q: %w", rawID, err)
	}
	if err := json.Unmarshal(rawSub, &t.Subscription); err != nil {
		return nil, fmt.Errorf("decode subscription of tenant %s: %w", rawID, err)
	}
	t.DeletedAt = deleted
	return &t, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, t *Tenant) error {
	sub, err := json.Marshal(t.Subscription)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, email, subscription, version, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID.String(), t.Name, t.Email, sub, t.Version, t.CreatedAt, t.UpdatedAt, t.DeletedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrTenantExists
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CompareAndSet(ctx context.Context, t *Tenant, expectedVersion int64) error {
	sub, err := json.Marshal(t.Subscription)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE tenants SET subscription = $1, updated_at = $2, version = version + 1
		 WHERE id = $3 AND version = $4`,
		sub, t.UpdatedAt, t.ID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update tenant subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetIncludingDeleted(ctx, t.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	return nil
}
