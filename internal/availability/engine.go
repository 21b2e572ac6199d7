package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	calendarerrors "masterbook/internal/calendars/errors"
	"masterbook/pkg/model"
)

var (
	ErrInvalidSlotRequest = errors.New("invalid slot request")
	ErrSlotUnavailable    = errors.New("slot unavailable")
)

const (
	DefaultGranularity = 15
	DefaultLeadTime    = 30 * time.Minute
	DefaultSearchDays  = 14
)

type CalendarReader interface {
	FindByProvider(ctx context.Context, providerID string) (*model.Calendar, error)
}

// BookingReader returns the bookings of a provider on a date whose status is active.
type BookingReader interface {
	FindActive(ctx context.Context, providerID string, date model.Date) ([]*model.Booking, error)
}

type Options struct {
	Granularity int
	LeadTime    time.Duration
	Now         func() time.Time
}

// Engine computes bookable slots. Its answers are hints: the booking store
// repeats the overlap check under the provider lock before anything is written.
type Engine struct {
	calendars CalendarReader
	bookings  BookingReader
	opts      Options
}

func NewEngine(calendars CalendarReader, bookings BookingReader, opts Options) *Engine {
	if opts.Granularity <= 0 {
		opts.Granularity = DefaultGranularity
	}
	if opts.LeadTime < 0 {
		opts.LeadTime = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{calendars: calendars, bookings: bookings, opts: opts}
}

// Calendar loads the provider's calendar, mapping a missing calendar to
// ErrInvalidSlotRequest since nothing can be booked without one.
func (e *Engine) Calendar(ctx context.Context, providerID string) (*model.Calendar, error) {
	cal, err := e.calendars.FindByProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, calendarerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: provider %s has no calendar", ErrInvalidSlotRequest, providerID)
		}
		return nil, err
	}
	return cal, nil
}

func (e *Engine) ComputeSlots(ctx context.Context, providerID string, date model.Date, durationMinutes int) ([]model.Slot, error) {
	if durationMinutes <= 0 || durationMinutes > model.MinutesPerDay {
		return nil, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalidSlotRequest, model.MinutesPerDay)
	}
	if !date.Valid() {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidSlotRequest, date)
	}

	cal, err := e.Calendar(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := cal.Location()
	now := e.opts.Now().In(loc)
	if date.Before(model.DateOf(now)) {
		return nil, fmt.Errorf("%w: date %s is in the past", ErrInvalidSlotRequest, date)
	}

	windows := cal.WindowsFor(date)
	if len(windows) == 0 {
		return []model.Slot{}, nil
	}

	active, err := e.bookings.FindActive(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	free := FreeIntervals(windows, busyWindows(active, ""), cal.BufferMinutes)
	slots := SlideSlots(date, free, durationMinutes, e.opts.Granularity)
	return e.dropInsideLeadTime(slots, loc, now), nil
}

// CheckSlot validates a concrete slot for booking. excludeID skips the
// booking being rescheduled so it does not collide with itself.
func (e *Engine) CheckSlot(ctx context.Context, providerID string, slot model.Slot, excludeID string) (*model.Calendar, error) {
	if !slot.Date.Valid() {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidSlotRequest, slot.Date)
	}
	if !slot.Window().Valid() {
		return nil, fmt.Errorf("%w: start must be before end within the same day", ErrInvalidSlotRequest)
	}

	cal, err := e.Calendar(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := cal.Location()

	if slot.Date.At(slot.Start, loc).Before(e.opts.Now().Add(e.opts.LeadTime)) {
		return nil, fmt.Errorf("%w: slot %s starts in the past or inside the lead time", ErrInvalidSlotRequest, slot)
	}
	if !withinAny(cal.WindowsFor(slot.Date), slot.Window()) {
		return nil, fmt.Errorf("%w: slot %s is outside working hours", ErrInvalidSlotRequest, slot)
	}

	active, err := e.bookings.FindActive(ctx, providerID, slot.Date)
	if err != nil {
		return nil, err
	}
	for _, busy := range busyWindows(active, excludeID) {
		if slot.Window().Overlaps(busy, cal.BufferMinutes) {
			return nil, fmt.Errorf("%w: slot %s collides with an existing booking", ErrSlotUnavailable, slot)
		}
	}
	return cal, nil
}

// NextAvailable scans forward from date and returns the first bookable slot
// within maxDays, or nil when there is none.
func (e *Engine) NextAvailable(ctx context.Context, providerID string, from model.Date, durationMinutes, maxDays int) (*model.Slot, error) {
	if maxDays <= 0 {
		maxDays = DefaultSearchDays
	}
	for i := 0; i < maxDays; i++ {
		slots, err := e.ComputeSlots(ctx, providerID, from.AddDays(i), durationMinutes)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &slots[0], nil
		}
	}
	return nil, nil
}

// dropInsideLeadTime applies the cutoff to every date so a lead time that
// reaches past midnight hides the same slots CheckSlot refuses.
func (e *Engine) dropInsideLeadTime(slots []model.Slot, loc *time.Location, now time.Time) []model.Slot {
	cutoff := now.Add(e.opts.LeadTime)
	out := slots[:0]
	for _, s := range slots {
		if s.Date.At(s.Start, loc).Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func busyWindows(bookings []*model.Booking, excludeID string) []model.Window {
	out := make([]model.Window, 0, len(bookings))
	for _, b := range bookings {
		if b.ID == excludeID || !b.Status.IsActive() {
			continue
		}
		out = append(out, b.Window())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func withinAny(windows []model.Window, w model.Window) bool {
	for _, win := range windows {
		if win.Contains(w) {
			return true
		}
	}
	return false
}

// FreeIntervals subtracts every busy window, widened by buffer on both sides,
// from the working windows. Pieces of zero or negative length are dropped.
func FreeIntervals(windows, busy []model.Window, buffer int) []model.Window {
	buf := model.Clock(buffer)
	free := make([]model.Window, 0, len(windows))

	for _, w := range windows {
		pieces := []model.Window{w}
		for _, b := range busy {
			blockStart, blockEnd := b.Start-buf, b.End+buf
			var next []model.Window
			for _, p := range pieces {
				if blockEnd <= p.Start || p.End <= blockStart {
					next = append(next, p)
					continue
				}
				if left := (model.Window{Start: p.Start, End: min(p.End, blockStart)}); left.End > left.Start {
					next = append(next, left)
				}
				if right := (model.Window{Start: max(p.Start, blockEnd), End: p.End}); right.End > right.Start {
					next = append(next, right)
				}
			}
			pieces = next
		}
		free = append(free, pieces...)
	}

	sort.Slice(free, func(i, j int) bool { return free[i].Start < free[j].Start })
	return free
}

// SlideSlots emits every start, stepping by granularity from the start of each
// free interval, at which a slot of durationMinutes fits entirely.
func SlideSlots(date model.Date, free []model.Window, durationMinutes, granularity int) []model.Slot {
	if durationMinutes <= 0 || granularity <= 0 {
		return nil
	}
	d, step := model.Clock(durationMinutes), model.Clock(granularity)

	slots := []model.Slot{}
	for _, iv := range free {
		for start := iv.Start; start+d <= iv.End; start += step {
			slots = append(slots, model.NewSlot(date, start, start+d))
		}
	}
	return slots
}
