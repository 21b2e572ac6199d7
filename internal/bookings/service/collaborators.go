package service

import (
	"context"

	"masterbook/pkg/events"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"
)

type PaymentGateway interface {
	Capture(ctx context.Context, req model.PaymentRequest) error
	Refund(ctx context.Context, req model.PaymentRequest) error
}

type Notifier interface {
	Notify(ctx context.Context, ev events.Event) error
}

type Analytics interface {
	TrackConversion(ctx context.Context, ev events.BookingCompleted) error
}

type Collaborators struct {
	Payments  PaymentGateway
	Notifier  Notifier
	Analytics Analytics
}

// RegisterCollaborators subscribes the integration side effects to the bus.
// Nil collaborators are skipped.
func RegisterCollaborators(bus *events.Bus, c Collaborators, log *logger.Logger) {
	if c.Payments != nil {
		events.Subscribe(bus, "payment-capture", func(ctx context.Context, ev events.BookingConfirmed) error {
			if ev.PaymentRef == "" {
				log.Debug("Booking confirmed without payment reference", "booking_id", ev.BookingID)
				return nil
			}
			return c.Payments.Capture(ctx, model.PaymentRequest{
				BookingID: ev.BookingID,
				Reference: ev.PaymentRef,
				Amount:    ev.Amount,
				Currency:  ev.Currency,
			})
		})
		events.Subscribe(bus, "payment-refund", func(ctx context.Context, ev events.BookingCancelled) error {
			if !ev.Refundable() {
				return nil
			}
			return c.Payments.Refund(ctx, model.PaymentRequest{
				BookingID: ev.BookingID,
				Reference: ev.PaymentRef,
				Amount:    ev.Amount,
				Currency:  ev.Currency,
			})
		})
	}

	if c.Notifier != nil {
		bus.SubscribeAll("notifier", c.Notifier.Notify)
	}

	if c.Analytics != nil {
		events.Subscribe(bus, "analytics-conversion", c.Analytics.TrackConversion)
	}
}
