package stream

import (
	"context"
	"fmt"
	"time"

	"masterbook/pkg/events"
	"masterbook/pkg/kafka"
	"masterbook/pkg/model"
)

const SchemaVersion = "1"

type producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Conversion is the analytics record written when a booking completes.
type Conversion struct {
	BookingID   string      `json:"booking_id"`
	Number      string      `json:"number"`
	ProviderID  string      `json:"provider_id"`
	ClientID    string      `json:"client_id"`
	Amount      model.Money `json:"amount"`
	Currency    string      `json:"currency"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Publisher writes booking events and conversions to Kafka. It is the
// Notifier and Analytics collaborator of the scheduling service.
type Publisher struct {
	events      producer
	conversions producer
	source      string
}

func NewPublisher(bookingEvents, conversions producer, source string) *Publisher {
	return &Publisher{
		events:      bookingEvents,
		conversions: conversions,
		source:      source,
	}
}

func (p *Publisher) Notify(ctx context.Context, ev events.Event) error {
	payload, err := events.Encode(ev)
	if err != nil {
		return err
	}

	msg, err := kafka.NewMessage().
		WithKey(ev.AggregateID()).
		WithRawValue(payload).
		WithEventType(ev.EventName()).
		WithBookingID(ev.AggregateID()).
		WithSchemaVersion(SchemaVersion).
		WithSource(p.source).
		WithTimestamp(ev.OccurredAt()).
		Build()
	if err != nil {
		return err
	}

	if err := p.events.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for booking %s: %w", ev.EventName(), ev.AggregateID(), err)
	}
	return nil
}

func (p *Publisher) TrackConversion(ctx context.Context, ev events.BookingCompleted) error {
	msg, err := kafka.NewMessage().
		WithKey(ev.ProviderID).
		WithValue(Conversion{
			BookingID:   ev.BookingID,
			Number:      ev.Number,
			ProviderID:  ev.ProviderID,
			ClientID:    ev.ClientID,
			Amount:      ev.Amount,
			Currency:    ev.Currency,
			CompletedAt: ev.At,
		}).
		WithEventType("booking.conversion").
		WithBookingID(ev.BookingID).
		WithSchemaVersion(SchemaVersion).
		WithSource(p.source).
		Build()
	if err != nil {
		return err
	}

	if err := p.conversions.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish conversion for booking %s: %w", ev.BookingID, err)
	}
	return nil
}
