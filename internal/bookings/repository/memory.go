package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	bookingserrors "masterbook/internal/bookings/errors"
	"masterbook/pkg/model"
)

// memoryProviderLocker hands out one slot per provider. Waiting honors ctx,
// so a caller that cannot get the lock in time gets ErrLockTimeout.
type memoryProviderLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryProviderLocker() ProviderLocker {
	return &memoryProviderLocker{slots: make(map[string]chan struct{})}
}

func (l *memoryProviderLocker) Acquire(ctx context.Context, providerID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[providerID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[providerID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: provider %s: %v", bookingserrors.ErrLockTimeout, providerID, ctx.Err())
	}
}

// MemoryBookingStore keeps bookings in process memory. Every value handed in
// or out is a copy, so callers never share state with the store.
type MemoryBookingStore struct {
	locks    ProviderLocker
	mu       sync.RWMutex
	bookings map[string]*model.Booking
	history  map[string][]*model.BookingHistory
}

func NewMemoryBookingStore() *MemoryBookingStore {
	return &MemoryBookingStore{
		locks:    NewMemoryProviderLocker(),
		bookings: make(map[string]*model.Booking),
		history:  make(map[string][]*model.BookingHistory),
	}
}

func (s *MemoryBookingStore) Reserve(ctx context.Context, b *model.Booking, bufferMinutes int, entry *model.BookingHistory) (*model.Booking, error) {
	release, err := s.locks.Acquire(ctx, b.ProviderID)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bookings[b.ID]; ok {
		return existing.Clone(), nil
	}
	if err := checkOverlap(b, s.providerDay(b.ProviderID, b.Date), bufferMinutes); err != nil {
		return nil, err
	}

	stored := b.Clone()
	stored.Version = 1
	s.bookings[stored.ID] = stored
	s.appendHistory(entry)
	return stored.Clone(), nil
}

func (s *MemoryBookingStore) Apply(ctx context.Context, id string, bufferMinutes int, mutate MutateFunc) (*model.Booking, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, current.ProviderID)
	if err != nil {
		return nil, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}

	next := stored.Clone()
	entry, err := mutate(next)
	if err != nil {
		return nil, err
	}
	if slotChanged(stored, next) && next.Status.IsActive() {
		if err := checkOverlap(next, s.providerDay(next.ProviderID, next.Date), bufferMinutes); err != nil {
			return nil, err
		}
	}

	next.Version = stored.Version + 1
	s.bookings[id] = next
	s.appendHistory(entry)
	return next.Clone(), nil
}

func (s *MemoryBookingStore) FindByID(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryBookingStore) FindActive(_ context.Context, providerID string, date model.Date) ([]*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Booking
	for _, b := range s.providerDay(providerID, date) {
		if b.Status.IsActive() {
			out = append(out, b.Clone())
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *MemoryBookingStore) Find(_ context.Context, q model.BookingQuery) ([]*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Booking
	for _, b := range s.bookings {
		if matches(b, q) {
			out = append(out, b.Clone())
		}
	}
	sortBookings(out)

	if q.Offset > 0 {
		if q.Offset >= int64(len(out)) {
			return []*model.Booking{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryBookingStore) Count(_ context.Context, q model.BookingQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, b := range s.bookings {
		if matches(b, q) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryBookingStore) History(_ context.Context, bookingID string) ([]*model.BookingHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[bookingID]
	out := make([]*model.BookingHistory, 0, len(entries))
	for _, h := range entries {
		c := *h
		out = append(out, &c)
	}
	return out, nil
}

// providerDay must be called with s.mu held.
func (s *MemoryBookingStore) providerDay(providerID string, date model.Date) []*model.Booking {
	var out []*model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID && b.Date == date {
			out = append(out, b)
		}
	}
	return out
}

// appendHistory must be called with s.mu held.
func (s *MemoryBookingStore) appendHistory(entry *model.BookingHistory) {
	if entry == nil {
		return
	}
	c := *entry
	s.history[entry.BookingID] = append(s.history[entry.BookingID], &c)
}

func sortBookings(bs []*model.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Date != bs[j].Date {
			return bs[i].Date < bs[j].Date
		}
		if bs[i].StartTime != bs[j].StartTime {
			return bs[i].StartTime < bs[j].StartTime
		}
		return bs[i].ID < bs[j].ID
	})
}
