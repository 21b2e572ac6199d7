package events

import (
	"time"

	"masterbook/pkg/model"
)

const (
	NameBookingCreated     = "booking.created"
	NameBookingConfirmed   = "booking.confirmed"
	NameBookingRejected    = "booking.rejected"
	NameBookingStarted     = "booking.started"
	NameBookingCompleted   = "booking.completed"
	NameBookingCancelled   = "booking.cancelled"
	NameBookingRescheduled = "booking.rescheduled"
)

// Event is a booking domain event. Every variant embeds Change.
type Event interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
	Transition() Change
}

// Change carries what every booking event has in common: the booking,
// its parties and the status before and after.
type Change struct {
	BookingID  string              `json:"booking_id"`
	Number     string              `json:"number"`
	ProviderID string              `json:"provider_id"`
	ClientID   string              `json:"client_id"`
	From       model.BookingStatus `json:"from,omitempty"`
	To         model.BookingStatus `json:"to"`
	Actor      model.Actor         `json:"actor"`
	Reason     string              `json:"reason,omitempty"`
	At         time.Time           `json:"at"`
}

func (c Change) AggregateID() string   { return c.BookingID }
func (c Change) OccurredAt() time.Time { return c.At }
func (c Change) Transition() Change    { return c }

// ChangeOf builds the common part from the booking after the transition.
func ChangeOf(b *model.Booking, from model.BookingStatus, actor model.Actor, reason string, at time.Time) Change {
	return Change{
		BookingID:  b.ID,
		Number:     b.Number,
		ProviderID: b.ProviderID,
		ClientID:   b.ClientID,
		From:       from,
		To:         b.Status,
		Actor:      actor,
		Reason:     reason,
		At:         at,
	}
}

type BookingCreated struct {
	Change
	Slot       model.Slot  `json:"slot"`
	TotalPrice model.Money `json:"total_price"`
	Currency   string      `json:"currency"`
}

func (BookingCreated) EventName() string { return NameBookingCreated }

type BookingConfirmed struct {
	Change
	PaymentRef string      `json:"payment_ref,omitempty"`
	Amount     model.Money `json:"amount"`
	Currency   string      `json:"currency"`
}

func (BookingConfirmed) EventName() string { return NameBookingConfirmed }

type BookingRejected struct {
	Change
}

func (BookingRejected) EventName() string { return NameBookingRejected }

type BookingStarted struct {
	Change
}

func (BookingStarted) EventName() string { return NameBookingStarted }

// RatingHook lets the client rate the provider once the appointment is done.
type RatingHook struct {
	BookingID  string    `json:"booking_id"`
	ProviderID string    `json:"provider_id"`
	ClientID   string    `json:"client_id"`
	OpenUntil  time.Time `json:"open_until"`
}

type BookingCompleted struct {
	Change
	RatingHook RatingHook  `json:"rating_hook"`
	Amount     model.Money `json:"amount"`
	Currency   string      `json:"currency"`
}

func (BookingCompleted) EventName() string { return NameBookingCompleted }

type BookingCancelled struct {
	Change
	CancelledBy model.Party `json:"cancelled_by"`
	PaymentRef  string      `json:"payment_ref,omitempty"`
	Amount      model.Money `json:"amount"`
	Currency    string      `json:"currency"`
}

func (BookingCancelled) EventName() string { return NameBookingCancelled }

// Refundable reports whether payment was captured before the cancellation.
// Capture happens on confirm, so only confirmed bookings with a payment
// reference have anything to refund.
func (e BookingCancelled) Refundable() bool {
	return e.PaymentRef != "" && e.From == model.StatusConfirmed
}

type BookingRescheduled struct {
	Change
	Previous model.Slot `json:"previous"`
	Slot     model.Slot `json:"slot"`
}

func (BookingRescheduled) EventName() string { return NameBookingRescheduled }

// HistoryOf turns an event into the audit row persisted with the transition.
func HistoryOf(ev Event, id string) *model.BookingHistory {
	c := ev.Transition()
	return &model.BookingHistory{
		ID:         id,
		BookingID:  c.BookingID,
		ProviderID: c.ProviderID,
		Event:      ev.EventName(),
		From:       c.From,
		To:         c.To,
		ActorID:    c.Actor.ID,
		ActorRole:  c.Actor.Role,
		Reason:     c.Reason,
		At:         c.At,
	}
}
