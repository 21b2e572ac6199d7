package repository

import (
	"context"
	"fmt"

	bookingserrors "masterbook/internal/bookings/errors"
	"masterbook/pkg/model"
)

// MutateFunc changes b in place and returns the audit entry for the change.
// Returning an error aborts the write and leaves the stored booking untouched.
type MutateFunc func(b *model.Booking) (*model.BookingHistory, error)

// BookingStore is the authoritative booking repository. Reserve and Apply are
// serialized per provider and re-check overlaps against the stored state.
type BookingStore interface {
	// Reserve inserts b as a new booking unless it overlaps an active booking
	// of the same provider on the same date. Reserving an id that already
	// exists returns the stored booking.
	Reserve(ctx context.Context, b *model.Booking, bufferMinutes int, entry *model.BookingHistory) (*model.Booking, error)
	// Apply runs mutate on the current booking and persists the result
	// together with the audit entry. A changed slot is re-checked for overlaps.
	Apply(ctx context.Context, id string, bufferMinutes int, mutate MutateFunc) (*model.Booking, error)

	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindActive(ctx context.Context, providerID string, date model.Date) ([]*model.Booking, error)
	Find(ctx context.Context, q model.BookingQuery) ([]*model.Booking, error)
	Count(ctx context.Context, q model.BookingQuery) (int64, error)
	History(ctx context.Context, bookingID string) ([]*model.BookingHistory, error)
}

// ProviderLocker serializes writes for one provider. The returned release
// must be called exactly once.
type ProviderLocker interface {
	Acquire(ctx context.Context, providerID string) (release func(), err error)
}

func checkOverlap(candidate *model.Booking, others []*model.Booking, bufferMinutes int) error {
	for _, other := range others {
		if other.ID == candidate.ID || !other.Status.IsActive() || other.Date != candidate.Date {
			continue
		}
		if candidate.Window().Overlaps(other.Window(), bufferMinutes) {
			return fmt.Errorf("%w: %s %s overlaps booking %s", bookingserrors.ErrTimeConflict,
				candidate.Date, candidate.Window(), other.Number)
		}
	}
	return nil
}

func slotChanged(before, after *model.Booking) bool {
	return before.Date != after.Date || before.StartTime != after.StartTime || before.EndTime != after.EndTime
}

func matches(b *model.Booking, q model.BookingQuery) bool {
	if q.ProviderID != "" && b.ProviderID != q.ProviderID {
		return false
	}
	if q.ClientID != "" && b.ClientID != q.ClientID {
		return false
	}
	if q.From != "" && b.Date < q.From {
		return false
	}
	if q.To != "" && b.Date > q.To {
		return false
	}
	if len(q.Statuses) > 0 {
		for _, s := range q.Statuses {
			if b.Status == s {
				return true
			}
		}
		return false
	}
	return true
}
