package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "masterbook/internal/bookings/errors"
	"masterbook/pkg/config"
	mongotx "masterbook/pkg/db/mongo"
	"masterbook/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName        = "Bookings"
	HistoryCollectionName = "Booking_history"

	writeConflictCode = 112
)

type mongoBookingStore struct {
	cfg        *config.Config
	collection *mongo.Collection
	history    *mongo.Collection
	locks      ProviderLocker
	txManager  mongotx.TransactionManager
}

func NewMongoBookingStore(cfg *config.Config, locks ProviderLocker) BookingStore {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		history:    db.Collection(HistoryCollectionName),
		locks:      locks,
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// When inside a transaction (SessionContext), returns the original context unchanged
// with a no-op cancel function, as we cannot wrap SessionContext without breaking
// transaction semantics.
func (r *mongoBookingStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingStore) Reserve(ctx context.Context, b *model.Booking, bufferMinutes int, entry *model.BookingHistory) (*model.Booking, error) {
	release, err := r.locks.Acquire(ctx, b.ProviderID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var (
		result    *model.Booking
		domainErr error
	)
	err = r.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		existing, err := r.findByID(sc, b.ID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, bookingserrors.ErrNotFound) {
			return err
		}

		others, err := r.findActive(sc, b.ProviderID, b.Date)
		if err != nil {
			return err
		}
		if err := checkOverlap(b, others, bufferMinutes); err != nil {
			domainErr = err
			return err
		}

		stored := b.Clone()
		stored.Version = 1
		if _, err := r.collection.InsertOne(sc, stored); err != nil {
			return err
		}
		if err := r.appendHistory(sc, entry); err != nil {
			return err
		}
		result = stored
		return nil
	})

	if domainErr != nil {
		return nil, domainErr
	}
	if err != nil {
		return nil, persistenceError("reserve booking", err)
	}
	return result, nil
}

func (r *mongoBookingStore) Apply(ctx context.Context, id string, bufferMinutes int, mutate MutateFunc) (*model.Booking, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := r.locks.Acquire(ctx, current.ProviderID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var (
		result    *model.Booking
		domainErr error
	)
	err = r.txManager.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		stored, err := r.findByID(sc, id)
		if err != nil {
			if errors.Is(err, bookingserrors.ErrNotFound) {
				domainErr = err
			}
			return err
		}

		next := stored.Clone()
		entry, err := mutate(next)
		if err != nil {
			domainErr = err
			return err
		}

		if slotChanged(stored, next) && next.Status.IsActive() {
			others, err := r.findActive(sc, next.ProviderID, next.Date)
			if err != nil {
				return err
			}
			if err := checkOverlap(next, others, bufferMinutes); err != nil {
				domainErr = err
				return err
			}
		}

		next.Version = stored.Version + 1
		res, err := r.collection.ReplaceOne(sc, bson.M{"_id": id, "version": stored.Version}, next)
		if err != nil {
			if isWriteConflict(err) {
				domainErr = bookingserrors.ErrVersionConflict
				return domainErr
			}
			return err
		}
		if res.MatchedCount == 0 {
			domainErr = bookingserrors.ErrVersionConflict
			return domainErr
		}
		if err := r.appendHistory(sc, entry); err != nil {
			return err
		}
		result = next
		return nil
	})

	if domainErr != nil {
		return nil, domainErr
	}
	if err != nil {
		return nil, persistenceError("apply booking change", err)
	}
	return result, nil
}

func (r *mongoBookingStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	b, err := r.findByID(ctx, id)
	if err != nil && !errors.Is(err, bookingserrors.ErrNotFound) && !errors.Is(err, bookingserrors.ErrInvalidID) {
		return nil, persistenceError("find booking", err)
	}
	return b, err
}

func (r *mongoBookingStore) findByID(ctx context.Context, id string) (*model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	var b model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *mongoBookingStore) FindActive(ctx context.Context, providerID string, date model.Date) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	bookings, err := r.findActive(ctx, providerID, date)
	if err != nil {
		return nil, persistenceError("find active bookings", err)
	}
	return bookings, nil
}

func (r *mongoBookingStore) findActive(ctx context.Context, providerID string, date model.Date) ([]*model.Booking, error) {
	filter := bson.M{
		"provider_id": providerID,
		"date":        date,
		"status":      bson.M{"$in": model.ActiveStatuses},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *mongoBookingStore) Find(ctx context.Context, q model.BookingQuery) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(q.Offset)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.collection.Find(ctx, buildQueryFilter(q), opts)
	if err != nil {
		return nil, persistenceError("find bookings", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, persistenceError("decode bookings", err)
	}
	return bookings, nil
}

func (r *mongoBookingStore) Count(ctx context.Context, q model.BookingQuery) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildQueryFilter(q))
	if err != nil {
		return 0, persistenceError("count bookings", err)
	}
	return count, nil
}

func (r *mongoBookingStore) History(ctx context.Context, bookingID string) ([]*model.BookingHistory, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}})
	cursor, err := r.history.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, persistenceError("find booking history", err)
	}
	defer cursor.Close(ctx)

	entries := []*model.BookingHistory{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, persistenceError("decode booking history", err)
	}
	return entries, nil
}

func (r *mongoBookingStore) appendHistory(ctx context.Context, entry *model.BookingHistory) error {
	if entry == nil {
		return nil
	}
	_, err := r.history.InsertOne(ctx, entry)
	return err
}

func buildQueryFilter(q model.BookingQuery) bson.M {
	filter := bson.M{}
	if q.ProviderID != "" {
		filter["provider_id"] = q.ProviderID
	}
	if q.ClientID != "" {
		filter["client_id"] = q.ClientID
	}

	if q.From != "" || q.To != "" {
		dateFilter := bson.M{}
		if q.From != "" {
			dateFilter["$gte"] = q.From
		}
		if q.To != "" {
			dateFilter["$lte"] = q.To
		}
		filter["date"] = dateFilter
	}

	if len(q.Statuses) > 0 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	return filter
}

// isWriteConflict reports whether another writer committed to the document
// after this transaction's snapshot was taken.
func isWriteConflict(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorCode(writeConflictCode)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", bookingserrors.ErrPersistence, op, err)
}
