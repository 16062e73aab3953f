package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// DefaultCollection holds tenant documents.
const DefaultCollection = "tenants"

type tenantDocument struct {
	ID           string       `bson:"_id"`
	Name         string       `bson:"name"`
	Email        string       `bson:"email"`
	Subscription Subscription `bson:"subscription"`
	Version      int64        `bson:"version"`
	CreatedAt    time.Time    `bson:"created_at"`
	UpdatedAt    time.Time    `bson:"updated_at"`
	DeletedAt    *time.Time   `bson:"deleted_at,omitempty"`
}

func toDocument(t *Tenant) tenantDocument {
	return tenantDocument{
		ID:           t.ID.String(),
		Name:         t.Name,
		Email:        t.Email,
		Subscription: t.Subscription,
		Version:      t.Version,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		DeletedAt:    t.DeletedAt,
	}
}

func (d tenantDocument) tenant() (*Tenant, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("tenant document %q: %w", d.ID, err)
	}
	return &Tenant{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		Subscription: d.Subscription,
		Version:      d.Version,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		DeletedAt:    d.DeletedAt,
	}, nil
}

// MongoRepository stores tenants as documents with the subscription embedded.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository uses DefaultCollection in db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(DefaultCollection)}
}

// EnsureIndexes creates lookup indexes for provider identifiers.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subscription.customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "subscription.subscription_id", Value: 1}}},
	})
	return err
}

func (r *MongoRepository) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return r.findOne(ctx, bson.M{"_id": id.String(), "deleted_at": nil})
}

func (r *MongoRepository) GetIncludingDeleted(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *MongoRepository) FindByCustomerID(ctx context.Context, customerID string) (*Tenant, error) {
	return r.findOne(ctx, bson.M{"subscription.customer_id": customerID})
}

func (r *MongoRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error) {
	return r.findOne(ctx, bson.M{"subscription.subscription_id": subscriptionID})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Tenant, error) {
	var doc tenantDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	return doc.tenant()
}

func (r *MongoRepository) Insert(ctx context.Context, t *Tenant) error {
	if _, err := r.coll.InsertOne(ctx, toDocument(t)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrTenantExists
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *MongoRepository) CompareAndSet(ctx context.Context, t *Tenant, expectedVersion int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": t.ID.String(), "version": expectedVersion},
		bson.M{"$set": bson.M{
			"subscription": t.Subscription,
			"updated_at":   t.UpdatedAt,
			"version":      expectedVersion + 1,
		}},
	)
	if err != nil {
		return fmt.Errorf("update tenant subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetIncludingDeleted(ctx, t.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	return nil
}

// SoftDelete sets deleted_at, hiding the tenant from Get.
func (r *MongoRepository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"deleted_at": at}},
	)
	if err != nil {
		return fmt.Errorf("soft delete tenant: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrTenantNotFound
	}
	return nil
}
