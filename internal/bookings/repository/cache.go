package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "booking:"

// Cache is the subset of *redis.Client used for booking lookups.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cachedBookingStore serves FindByID from Redis. Writes go to the wrapped
// store first and then overwrite the cached copy. A read miss only fills an
// absent key, so a lookup racing a write cannot replace the newer entry.
// Redis failures only degrade to store reads.
type cachedBookingStore struct {
	BookingStore
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedBookingStore(next BookingStore, cache Cache, ttl time.Duration, log *logger.Logger) BookingStore {
	return &cachedBookingStore{BookingStore: next, cache: cache, ttl: ttl, log: log}
}

func (s *cachedBookingStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	raw, err := s.cache.Get(ctx, cacheKeyPrefix+id).Bytes()
	switch {
	case err == nil:
		var b model.Booking
		if jsonErr := json.Unmarshal(raw, &b); jsonErr == nil {
			return &b, nil
		}
		s.invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		s.log.Warn("Booking cache read failed", "id", id, "error", err)
	}

	b, err := s.BookingStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, b)
	return b, nil
}

func (s *cachedBookingStore) Reserve(ctx context.Context, b *model.Booking, bufferMinutes int, entry *model.BookingHistory) (*model.Booking, error) {
	stored, err := s.BookingStore.Reserve(ctx, b, bufferMinutes, entry)
	if err != nil {
		return nil, err
	}
	s.put(ctx, stored)
	return stored, nil
}

func (s *cachedBookingStore) Apply(ctx context.Context, id string, bufferMinutes int, mutate MutateFunc) (*model.Booking, error) {
	updated, err := s.BookingStore.Apply(ctx, id, bufferMinutes, mutate)
	if err != nil {
		s.invalidate(ctx, id)
		return nil, err
	}
	s.put(ctx, updated)
	return updated, nil
}

func (s *cachedBookingStore) put(ctx context.Context, b *model.Booking) {
	data, err := json.Marshal(b)
	if err != nil {
		s.log.Warn("Failed to encode booking for cache", "id", b.ID, "error", err)
		s.invalidate(ctx, b.ID)
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+b.ID, data, s.ttl).Err(); err != nil {
		s.log.Warn("Booking cache write failed", "id", b.ID, "error", err)
		s.invalidate(ctx, b.ID)
	}
}

func (s *cachedBookingStore) fill(ctx context.Context, b *model.Booking) {
	data, err := json.Marshal(b)
	if err != nil {
		s.log.Warn("Failed to encode booking for cache", "id", b.ID, "error", err)
		return
	}
	if err := s.cache.SetNX(ctx, cacheKeyPrefix+b.ID, data, s.ttl).Err(); err != nil {
		s.log.Warn("Booking cache fill failed", "id", b.ID, "error", err)
	}
}

func (s *cachedBookingStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Del(context.WithoutCancel(ctx), cacheKeyPrefix+id).Err(); err != nil {
		s.log.Error("Booking cache invalidation failed, entry may be stale until it expires", "id", id, "error", err)
	}
}
