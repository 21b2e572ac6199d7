package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire form of an event on the booking topic.
type Envelope struct {
	Name        string          `json:"name"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

func Encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{
		Name:        ev.EventName(),
		AggregateID: ev.AggregateID(),
		OccurredAt:  ev.OccurredAt(),
		Payload:     payload,
	})
}

func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Name {
	case NameBookingCreated:
		return decodeAs[BookingCreated](env)
	case NameBookingConfirmed:
		return decodeAs[BookingConfirmed](env)
	case NameBookingRejected:
		return decodeAs[BookingRejected](env)
	case NameBookingStarted:
		return decodeAs[BookingStarted](env)
	case NameBookingCompleted:
		return decodeAs[BookingCompleted](env)
	case NameBookingCancelled:
		return decodeAs[BookingCancelled](env)
	case NameBookingRescheduled:
		return decodeAs[BookingRescheduled](env)
	default:
		return nil, fmt.Errorf("unknown event %q", env.Name)
	}
}

func decodeAs[E Event](env Envelope) (Event, error) {
	var ev E
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Name, err)
	}
	return ev, nil
}
