package repository

import (
	"context"
	"fmt"
	"time"

	bookingserrors "masterbook/internal/bookings/errors"
	"masterbook/pkg/config"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	LockCollectionName = "Provider_locks"

	lockMinBackoff = 10 * time.Millisecond
	lockMaxBackoff = 200 * time.Millisecond
)

// mongoProviderLocker implements advisory locks as documents keyed by
// provider. Inserting a lock that already exists fails with a duplicate key
// error, which means another writer holds it.
type mongoProviderLocker struct {
	collection *mongo.Collection
	ttl        time.Duration
	wait       time.Duration
	log        *logger.Logger
}

func NewMongoProviderLocker(cfg *config.Config) ProviderLocker {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoProviderLocker{
		collection: db.Collection(LockCollectionName),
		ttl:        cfg.ProviderLockTTL,
		wait:       cfg.ProviderLockWait,
		log:        cfg.Log,
	}
}

func (l *mongoProviderLocker) Acquire(ctx context.Context, providerID string) (func(), error) {
	id := model.ProviderLockID(providerID)
	owner := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	backoff := lockMinBackoff

	for {
		now := time.Now().UTC()
		lock := &model.ProviderLock{
			ID:         id,
			ProviderID: providerID,
			Owner:      owner,
			ExpiresAt:  now.Add(l.ttl),
			CreatedAt:  now,
		}

		_, err := l.collection.InsertOne(ctx, lock)
		if err == nil {
			return func() { l.release(id, owner) }, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: acquire lock for provider %s: %v", bookingserrors.ErrPersistence, providerID, err)
		}

		// The TTL monitor runs once a minute, so a crashed holder's lock is
		// cleared here as soon as it expires.
		if _, err := l.collection.DeleteOne(ctx, bson.M{"_id": id, "expires_at": bson.M{"$lt": now}}); err != nil {
			l.log.Warn("Failed to clear expired provider lock", "provider_id", providerID, "error", err)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: provider %s", bookingserrors.ErrLockTimeout, providerID)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: provider %s: %v", bookingserrors.ErrLockTimeout, providerID, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, lockMaxBackoff)
	}
}

// release only removes the lock if this owner still holds it.
func (l *mongoProviderLocker) release(id, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := l.collection.DeleteOne(ctx, bson.M{"_id": id, "owner": owner}); err != nil {
		l.log.Error("Failed to release provider lock, it will expire on its own",
			"lock_id", id,
			"error", err,
		)
	}
}
