package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusRejected   BookingStatus = "rejected"
)

// ActiveStatuses are the statuses that occupy a provider's time.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress}

func (s BookingStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

func (s BookingStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

type Party string

const (
	PartyClient   Party = "client"
	PartyProvider Party = "provider"
	PartySystem   Party = "system"
)

func (p Party) Valid() bool {
	return p == PartyClient || p == PartyProvider || p == PartySystem
}

// Actor is the authenticated party performing an operation.
type Actor struct {
	ID   string `json:"id" bson:"id"`
	Role Party  `json:"role" bson:"role"`
}

func SystemActor() Actor {
	return Actor{ID: string(PartySystem), Role: PartySystem}
}

type Booking struct {
	ID                 string        `json:"id" bson:"_id"`
	Number             string        `json:"number" bson:"number"`
	ProviderID         string        `json:"provider_id" bson:"provider_id"`
	ClientID           string        `json:"client_id" bson:"client_id"`
	ServiceID          string        `json:"service_id,omitempty" bson:"service_id,omitempty"`
	ServiceName        string        `json:"service_name,omitempty" bson:"service_name,omitempty"`
	Date               Date          `json:"date" bson:"date"`
	StartTime          Clock         `json:"start_time" bson:"start_time"`
	EndTime            Clock         `json:"end_time" bson:"end_time"`
	DurationMinutes    int           `json:"duration_minutes" bson:"duration_minutes"`
	BasePrice          Money         `json:"base_price" bson:"base_price"`
	TotalPrice         Money         `json:"total_price" bson:"total_price"`
	Currency           string        `json:"currency" bson:"currency"`
	Status             BookingStatus `json:"status" bson:"status"`
	PaymentRef         string        `json:"payment_ref,omitempty" bson:"payment_ref,omitempty"`
	Notes              string        `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt          time.Time     `json:"created_at" bson:"created_at"`
	ConfirmedAt        *time.Time    `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	StartedAt          *time.Time    `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelledBy        Party         `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty"`
	RescheduleCount    int           `json:"reschedule_count" bson:"reschedule_count"`
	Version            int64         `json:"version" bson:"version"`
	UpdatedAt          time.Time     `json:"updated_at" bson:"updated_at"`
}

func (b *Booking) Window() Window {
	return Window{Start: b.StartTime, End: b.EndTime}
}

func (b *Booking) Slot() Slot {
	return Slot{Date: b.Date, Start: b.StartTime, End: b.EndTime, DurationMinutes: b.DurationMinutes}
}

// StartsAt returns the instant the appointment begins in the provider's zone.
func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.Date.At(b.StartTime, loc)
}

// VisibleTo reports whether the actor is a party to the booking.
func (b *Booking) VisibleTo(actor Actor) bool {
	switch actor.Role {
	case PartySystem:
		return true
	case PartyProvider:
		return actor.ID == b.ProviderID
	case PartyClient:
		return actor.ID == b.ClientID
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.ConfirmedAt = cloneTime(b.ConfirmedAt)
	c.StartedAt = cloneTime(b.StartedAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// NewBookingNumber returns a human readable number such as BK20250317-4F9A1C.
func NewBookingNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("BK%s-%s", at.Format("20060102"), suffix)
}

type BookingQuery struct {
	ProviderID string
	ClientID   string
	From       Date
	To         Date
	Statuses   []BookingStatus
	Limit      int
	Offset     int64
}

type CreateBookingRequest struct {
	ProviderID  string `json:"provider_id" validate:"required,max=64"`
	ClientID    string `json:"client_id" validate:"required,max=64"`
	ServiceID   string `json:"service_id,omitempty" validate:"omitempty,max=64"`
	ServiceName string `json:"service_name,omitempty" validate:"omitempty,max=100"`
	Date        string `json:"date" validate:"required,iso_date"`
	StartTime   string `json:"start_time" validate:"required,hhmm"`
	EndTime     string `json:"end_time" validate:"required,hhmm"`
	BasePrice   Money  `json:"base_price"`
	TotalPrice  Money  `json:"total_price"`
	Currency    string `json:"currency" validate:"required,len=3,alpha"`
	PaymentRef  string `json:"payment_ref,omitempty" validate:"omitempty,max=128"`
	Notes       string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type RescheduleRequest struct {
	Date      string `json:"date" validate:"required,iso_date"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

type TransitionRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}
