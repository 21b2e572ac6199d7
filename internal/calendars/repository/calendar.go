package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	calendarerrors "masterbook/internal/calendars/errors"
	"masterbook/pkg/config"
	"masterbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Calendars"
)

type CalendarRepository interface {
	FindByProvider(ctx context.Context, providerID string) (*model.Calendar, error)
	Save(ctx context.Context, cal *model.Calendar) error
	// AddException fails with ErrDuplicateException when the date already has one.
	AddException(ctx context.Context, providerID string, ex model.CalendarException) error
	RemoveException(ctx context.Context, providerID string, date model.Date) error
	Delete(ctx context.Context, providerID string) error
}

type mongoCalendarRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCalendarRepository(cfg *config.Config) CalendarRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCalendarRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoCalendarRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoCalendarRepository) FindByProvider(ctx context.Context, providerID string) (*model.Calendar, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var cal model.Calendar
	err := r.collection.FindOne(ctx, bson.M{"_id": providerID}).Decode(&cal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
		}
		return nil, fmt.Errorf("failed to find calendar: %w", err)
	}
	return &cal, nil
}

func (r *mongoCalendarRepository) Save(ctx context.Context, cal *model.Calendar) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	if cal.CreatedAt.IsZero() {
		cal.CreatedAt = now
	}
	cal.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, bson.M{"_id": cal.ProviderID}, cal, opts); err != nil {
		return fmt.Errorf("failed to save calendar: %w", err)
	}
	return nil
}

func (r *mongoCalendarRepository) AddException(ctx context.Context, providerID string, ex model.CalendarException) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":             providerID,
		"exceptions.date": bson.M{"$ne": ex.Date},
	}
	update := bson.M{
		"$push": bson.M{"exceptions": ex},
		"$set":  bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to add calendar exception: %w", err)
	}
	if result.MatchedCount == 0 {
		return r.missOrDuplicate(ctx, providerID, ex.Date)
	}
	return nil
}

// missOrDuplicate explains why a guarded update matched nothing.
func (r *mongoCalendarRepository) missOrDuplicate(ctx context.Context, providerID string, date model.Date) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": providerID})
	if err != nil {
		return fmt.Errorf("failed to check calendar existence: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	return fmt.Errorf("%w: %s", calendarerrors.ErrDuplicateException, date)
}

func (r *mongoCalendarRepository) RemoveException(ctx context.Context, providerID string, date model.Date) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$pull": bson.M{"exceptions": bson.M{"date": date}},
		"$set":  bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": providerID}, update)
	if err != nil {
		return fmt.Errorf("failed to remove calendar exception: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	return nil
}

func (r *mongoCalendarRepository) Delete(ctx context.Context, providerID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": providerID})
	if err != nil {
		return fmt.Errorf("failed to delete calendar: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	return nil
}
