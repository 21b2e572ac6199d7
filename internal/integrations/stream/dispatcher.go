package stream

import (
	"context"
	"fmt"
	"time"

	"masterbook/pkg/events"
	"masterbook/pkg/kafka"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"
)

const (
	TemplateNewBooking   = "booking_new"
	TemplateConfirmed    = "booking_confirmed"
	TemplateRejected     = "booking_rejected"
	TemplateStarted      = "booking_started"
	TemplateRateProvider = "booking_rate_provider"
	TemplateCancelled    = "booking_cancelled"
	TemplateRescheduled  = "booking_rescheduled"
)

// Notification is a message for one party of a booking.
type Notification struct {
	RecipientID   string
	RecipientRole model.Party
	Template      string
	BookingID     string
	Number        string
	Data          map[string]string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher turns booking events read from Kafka into notifications.
type Dispatcher struct {
	sender Sender
	log    *logger.Logger
}

func NewDispatcher(sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log}
}

// Handle is a kafka.MessageHandler. Records that cannot be decoded are
// permanent failures and go to the dead letter topic.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	ev, err := events.Decode(msg.Value)
	if err != nil {
		return kafka.NewPermanentError("undecodable booking event", err)
	}

	n, ok := notificationFor(ev)
	if !ok {
		d.log.Debug("No notification for event", "event", ev.EventName(), "booking_id", ev.AggregateID())
		return nil
	}

	if err := d.sender.Send(ctx, n); err != nil {
		return kafka.NewTransientError(fmt.Sprintf("send %s to %s", n.Template, n.RecipientID), err)
	}
	return nil
}

func notificationFor(ev events.Event) (Notification, bool) {
	c := ev.Transition()
	n := Notification{
		BookingID: c.BookingID,
		Number:    c.Number,
		Data:      map[string]string{},
	}
	toClient := func() { n.RecipientID, n.RecipientRole = c.ClientID, model.PartyClient }
	toProvider := func() { n.RecipientID, n.RecipientRole = c.ProviderID, model.PartyProvider }

	switch e := ev.(type) {
	case events.BookingCreated:
		toProvider()
		n.Template = TemplateNewBooking
		n.Data["date"] = string(e.Slot.Date)
		n.Data["start"] = e.Slot.Start.String()
		n.Data["total_price"] = e.TotalPrice.StringFixed(2)
		n.Data["currency"] = e.Currency
	case events.BookingConfirmed:
		toClient()
		n.Template = TemplateConfirmed
	case events.BookingRejected:
		toClient()
		n.Template = TemplateRejected
		n.Data["reason"] = c.Reason
	case events.BookingStarted:
		toClient()
		n.Template = TemplateStarted
	case events.BookingCompleted:
		toClient()
		n.Template = TemplateRateProvider
		n.Data["rate_until"] = e.RatingHook.OpenUntil.Format(time.RFC3339)
	case events.BookingCancelled:
		if e.CancelledBy == model.PartyClient {
			toProvider()
		} else {
			toClient()
		}
		n.Template = TemplateCancelled
		n.Data["cancelled_by"] = string(e.CancelledBy)
		n.Data["reason"] = c.Reason
	case events.BookingRescheduled:
		if c.Actor.Role == model.PartyClient {
			toProvider()
		} else {
			toClient()
		}
		n.Template = TemplateRescheduled
		n.Data["date"] = string(e.Slot.Date)
		n.Data["start"] = e.Slot.Start.String()
		n.Data["previous_date"] = string(e.Previous.Date)
		n.Data["previous_start"] = e.Previous.Start.String()
	default:
		return Notification{}, false
	}
	return n, n.RecipientID != ""
}

// LogSender writes notifications to the log. It stands in for a real
// delivery channel.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("Notification sent",
		"recipient_id", n.RecipientID,
		"recipient_role", n.RecipientRole,
		"template", n.Template,
		"booking_id", n.BookingID,
		"number", n.Number,
	)
	return nil
}
