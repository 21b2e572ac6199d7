package stream

import (
	"context"

	"masterbook/pkg/events"
	"masterbook/pkg/logger"
)

// LogSink records events in the service log when Kafka is not configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, ev events.Event) error {
	c := ev.Transition()
	s.log.Info("Booking event",
		"event", ev.EventName(),
		"booking_id", c.BookingID,
		"number", c.Number,
		"from", c.From,
		"to", c.To,
		"actor_role", c.Actor.Role,
	)
	return nil
}

func (s *LogSink) TrackConversion(_ context.Context, ev events.BookingCompleted) error {
	s.log.Info("Booking conversion",
		"booking_id", ev.BookingID,
		"provider_id", ev.ProviderID,
		"amount", ev.Amount.String(),
		"currency", ev.Currency,
		"rating_open_until", ev.RatingHook.OpenUntil,
	)
	return nil
}
