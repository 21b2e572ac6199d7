package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return redis.NewStatusResult("", errors.New("redis: connection refused"))
	}
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return redis.NewBoolResult(false, errors.New("redis: connection refused"))
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.([]byte)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCache) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[cacheKeyPrefix+id]
	return ok
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard, Service: "test"})
}

func TestCachedStore_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	store := NewCachedBookingStore(NewMemoryBookingStore(), cache, time.Minute, quietLogger())

	b := newBooking("p1", 540, 600)
	b.TotalPrice = model.MustMoney("35.50")
	_, err := store.Reserve(ctx, b, 0, nil)
	require.NoError(t, err)
	assert.True(t, cache.has(b.ID))

	_, err = store.Apply(ctx, b.ID, 0, func(cur *model.Booking) (*model.BookingHistory, error) {
		now := time.Now().UTC()
		cur.Status = model.StatusConfirmed
		cur.ConfirmedAt = &now
		return nil, nil
	})
	require.NoError(t, err)

	got, err := store.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, model.Clock(540), got.StartTime)
	assert.True(t, got.TotalPrice.Equal(b.TotalPrice.Decimal))
}

func TestCachedStore_FailedWriteDropsEntry(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	inner := NewMemoryBookingStore()
	store := NewCachedBookingStore(inner, cache, time.Minute, quietLogger())

	b := newBooking("p1", 540, 600)
	_, err := store.Reserve(ctx, b, 0, nil)
	require.NoError(t, err)
	require.True(t, cache.has(b.ID))

	cache.failSet = true
	_, err = store.Apply(ctx, b.ID, 0, func(cur *model.Booking) (*model.BookingHistory, error) {
		cur.Status = model.StatusConfirmed
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, cache.has(b.ID), "stale entry must be removed when refresh fails")

	got, err := store.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}

func TestCachedStore_CorruptEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	inner := NewMemoryBookingStore()
	store := NewCachedBookingStore(inner, cache, time.Minute, quietLogger())

	b := newBooking("p1", 540, 600)
	_, err := inner.Reserve(ctx, b, 0, nil)
	require.NoError(t, err)
	cache.data[cacheKeyPrefix+b.ID] = []byte("{not json")

	got, err := store.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

// slowReadStore hands out the booking it read before running afterRead, the
// way a lookup that loses a race with a concurrent write would.
type slowReadStore struct {
	BookingStore
	afterRead func()
}

func (s *slowReadStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := s.BookingStore.FindByID(ctx, id)
	if s.afterRead != nil {
		hook := s.afterRead
		s.afterRead = nil
		hook()
	}
	return b, err
}

func TestCachedStore_LookupRacingWriteKeepsNewerEntry(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	inner := &slowReadStore{BookingStore: NewMemoryBookingStore()}
	store := NewCachedBookingStore(inner, cache, time.Minute, quietLogger())

	b := newBooking("p1", 540, 600)
	_, err := inner.BookingStore.Reserve(ctx, b, 0, nil)
	require.NoError(t, err)
	require.False(t, cache.has(b.ID))

	inner.afterRead = func() {
		_, err := store.Apply(ctx, b.ID, 0, func(cur *model.Booking) (*model.BookingHistory, error) {
			cur.Status = model.StatusConfirmed
			return nil, nil
		})
		require.NoError(t, err)
	}

	stale, err := store.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stale.Status)

	got, err := store.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
}
