package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	calendarerrors "masterbook/internal/calendars/errors"
	"masterbook/pkg/model"
)

// MemoryCalendarRepository backs tests and single-process deployments.
type MemoryCalendarRepository struct {
	mu        sync.RWMutex
	calendars map[string]*model.Calendar
	now       func() time.Time
}

func NewMemoryCalendarRepository() *MemoryCalendarRepository {
	return &MemoryCalendarRepository{
		calendars: make(map[string]*model.Calendar),
		now:       time.Now,
	}
}

func (r *MemoryCalendarRepository) FindByProvider(_ context.Context, providerID string) (*model.Calendar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cal, ok := r.calendars[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	return cloneCalendar(cal), nil
}

func (r *MemoryCalendarRepository) Save(_ context.Context, cal *model.Calendar) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Truncate(time.Millisecond)
	if cal.CreatedAt.IsZero() {
		cal.CreatedAt = now
	}
	cal.UpdatedAt = now
	r.calendars[cal.ProviderID] = cloneCalendar(cal)
	return nil
}

func (r *MemoryCalendarRepository) AddException(_ context.Context, providerID string, ex model.CalendarException) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cal, ok := r.calendars[providerID]
	if !ok {
		return fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	if _, exists := cal.ExceptionFor(ex.Date); exists {
		return fmt.Errorf("%w: %s", calendarerrors.ErrDuplicateException, ex.Date)
	}
	ex.Windows = slices.Clone(ex.Windows)
	cal.Exceptions = append(cal.Exceptions, ex)
	cal.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)
	return nil
}

func (r *MemoryCalendarRepository) RemoveException(_ context.Context, providerID string, date model.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cal, ok := r.calendars[providerID]
	if !ok {
		return fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	cal.Exceptions = slices.DeleteFunc(cal.Exceptions, func(ex model.CalendarException) bool {
		return ex.Date == date
	})
	cal.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)
	return nil
}

func (r *MemoryCalendarRepository) Delete(_ context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.calendars[providerID]; !ok {
		return fmt.Errorf("%w: %s", calendarerrors.ErrNotFound, providerID)
	}
	delete(r.calendars, providerID)
	return nil
}

func cloneCalendar(cal *model.Calendar) *model.Calendar {
	out := *cal
	out.Weekly = make([]model.DayWindows, len(cal.Weekly))
	for i, day := range cal.Weekly {
		out.Weekly[i] = model.DayWindows{Weekday: day.Weekday, Windows: slices.Clone(day.Windows)}
	}
	out.Exceptions = make([]model.CalendarException, len(cal.Exceptions))
	for i, ex := range cal.Exceptions {
		ex.Windows = slices.Clone(ex.Windows)
		out.Exceptions[i] = ex
	}
	return &out
}
