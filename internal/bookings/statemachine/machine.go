package statemachine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"masterbook/pkg/events"
	"masterbook/pkg/model"
)

var (
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrActorNotAllowed   = errors.New("actor is not allowed to perform this operation")
)

type Operation string

const (
	OpCreate     Operation = "create"
	OpConfirm    Operation = "confirm"
	OpReject     Operation = "reject"
	OpStart      Operation = "start"
	OpComplete   Operation = "complete"
	OpCancel     Operation = "cancel"
	OpReschedule Operation = "reschedule"
)

const DefaultRatingWindow = 14 * 24 * time.Hour

var legalSources = map[Operation][]model.BookingStatus{
	OpConfirm:    {model.StatusPending},
	OpReject:     {model.StatusPending},
	OpStart:      {model.StatusConfirmed},
	OpComplete:   {model.StatusConfirmed, model.StatusInProgress},
	OpCancel:     {model.StatusPending, model.StatusConfirmed},
	OpReschedule: {model.StatusPending, model.StatusConfirmed},
}

var allowedRoles = map[Operation][]model.Party{
	OpCreate:     {model.PartyClient, model.PartySystem},
	OpConfirm:    {model.PartyProvider, model.PartySystem},
	OpReject:     {model.PartyProvider, model.PartySystem},
	OpStart:      {model.PartyProvider, model.PartySystem},
	OpComplete:   {model.PartyProvider, model.PartySystem},
	OpCancel:     {model.PartyClient, model.PartyProvider, model.PartySystem},
	OpReschedule: {model.PartyClient, model.PartyProvider, model.PartySystem},
}

// TransitionError reports an operation attempted from a status outside its
// legal source set. It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	Operation Operation
	From      model.BookingStatus
	Detail    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s booking in status %s", e.Operation, e.From)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// LegalSources returns the statuses op may be applied from.
func LegalSources(op Operation) []model.BookingStatus {
	return slices.Clone(legalSources[op])
}

func CanApply(op Operation, from model.BookingStatus) bool {
	return slices.Contains(legalSources[op], from)
}

// Machine executes transitions on a booking value. It never persists; the
// store runs it inside the atomic write so the change and its event agree.
type Machine struct {
	now          func() time.Time
	ratingWindow time.Duration
}

func New(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now, ratingWindow: DefaultRatingWindow}
}

func (m *Machine) Now() time.Time {
	return m.now().UTC()
}

func (m *Machine) Create(b *model.Booking, actor model.Actor) (events.BookingCreated, error) {
	if err := authorize(OpCreate, b, actor); err != nil {
		return events.BookingCreated{}, err
	}

	now := m.Now()
	b.Status = model.StatusPending
	b.CreatedAt = now
	b.UpdatedAt = now
	b.ConfirmedAt, b.StartedAt, b.CompletedAt, b.CancelledAt = nil, nil, nil, nil
	if b.Number == "" {
		b.Number = model.NewBookingNumber(now)
	}

	return events.BookingCreated{
		Change:     events.ChangeOf(b, "", actor, "", now),
		Slot:       b.Slot(),
		TotalPrice: b.TotalPrice,
		Currency:   b.Currency,
	}, nil
}

func (m *Machine) Confirm(b *model.Booking, actor model.Actor) (events.Event, error) {
	from, now, err := m.begin(OpConfirm, b, actor)
	if err != nil {
		return nil, err
	}

	b.Status = model.StatusConfirmed
	b.ConfirmedAt = &now

	return events.BookingConfirmed{
		Change:     events.ChangeOf(b, from, actor, "", now),
		PaymentRef: b.PaymentRef,
		Amount:     b.TotalPrice,
		Currency:   b.Currency,
	}, nil
}

func (m *Machine) Reject(b *model.Booking, actor model.Actor, reason string) (events.Event, error) {
	from, now, err := m.begin(OpReject, b, actor)
	if err != nil {
		return nil, err
	}

	b.Status = model.StatusRejected
	b.CancelledAt = &now
	b.CancelledBy = model.PartyProvider
	b.CancellationReason = reason

	return events.BookingRejected{Change: events.ChangeOf(b, from, actor, reason, now)}, nil
}

// Start moves a confirmed booking in progress once its start time has come.
// loc is the provider's time zone.
func (m *Machine) Start(b *model.Booking, actor model.Actor, loc *time.Location) (events.Event, error) {
	if !CanApply(OpStart, b.Status) {
		return nil, &TransitionError{Operation: OpStart, From: b.Status}
	}
	if m.now().Before(b.StartsAt(loc)) {
		return nil, &TransitionError{Operation: OpStart, From: b.Status, Detail: "appointment has not started yet"}
	}

	from, now, err := m.begin(OpStart, b, actor)
	if err != nil {
		return nil, err
	}

	b.Status = model.StatusInProgress
	b.StartedAt = &now

	return events.BookingStarted{Change: events.ChangeOf(b, from, actor, "", now)}, nil
}

func (m *Machine) Complete(b *model.Booking, actor model.Actor) (events.Event, error) {
	from, now, err := m.begin(OpComplete, b, actor)
	if err != nil {
		return nil, err
	}

	b.Status = model.StatusCompleted
	b.CompletedAt = &now

	return events.BookingCompleted{
		Change: events.ChangeOf(b, from, actor, "", now),
		RatingHook: events.RatingHook{
			BookingID:  b.ID,
			ProviderID: b.ProviderID,
			ClientID:   b.ClientID,
			OpenUntil:  now.Add(m.ratingWindow),
		},
		Amount:   b.TotalPrice,
		Currency: b.Currency,
	}, nil
}

func (m *Machine) Cancel(b *model.Booking, actor model.Actor, reason string) (events.Event, error) {
	from, now, err := m.begin(OpCancel, b, actor)
	if err != nil {
		return nil, err
	}

	b.Status = model.StatusCancelled
	b.CancelledAt = &now
	b.CancelledBy = actor.Role
	b.CancellationReason = reason

	return events.BookingCancelled{
		Change:      events.ChangeOf(b, from, actor, reason, now),
		CancelledBy: actor.Role,
		PaymentRef:  b.PaymentRef,
		Amount:      b.TotalPrice,
		Currency:    b.Currency,
	}, nil
}

// Reschedule moves the booking to slot without changing its status. The slot
// must already have been validated against the provider's calendar.
func (m *Machine) Reschedule(b *model.Booking, actor model.Actor, slot model.Slot) (events.Event, error) {
	from, now, err := m.begin(OpReschedule, b, actor)
	if err != nil {
		return nil, err
	}

	previous := b.Slot()
	b.Date = slot.Date
	b.StartTime = slot.Start
	b.EndTime = slot.End
	b.DurationMinutes = int(slot.End - slot.Start)
	b.RescheduleCount++

	return events.BookingRescheduled{
		Change:   events.ChangeOf(b, from, actor, "", now),
		Previous: previous,
		Slot:     b.Slot(),
	}, nil
}

func (m *Machine) begin(op Operation, b *model.Booking, actor model.Actor) (model.BookingStatus, time.Time, error) {
	from := b.Status
	if !CanApply(op, from) {
		return from, time.Time{}, &TransitionError{Operation: op, From: from}
	}
	if err := authorize(op, b, actor); err != nil {
		return from, time.Time{}, err
	}
	now := m.Now()
	b.UpdatedAt = now
	return from, now, nil
}

func authorize(op Operation, b *model.Booking, actor model.Actor) error {
	if !slices.Contains(allowedRoles[op], actor.Role) {
		return fmt.Errorf("%w: %s cannot %s a booking", ErrActorNotAllowed, actor.Role, op)
	}
	if !b.VisibleTo(actor) {
		return fmt.Errorf("%w: %s %s is not a party to booking %s", ErrActorNotAllowed, actor.Role, actor.ID, b.ID)
	}
	return nil
}
