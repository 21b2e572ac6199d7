package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"masterbook/pkg/events"
	"masterbook/pkg/kafka"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	messages []kafka.Message
	err      error
}

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type fakeSender struct {
	sent []Notification
	err  error
}

func (f *fakeSender) Send(_ context.Context, n Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

var at = time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)

func change(from, to model.BookingStatus, actor model.Actor) events.Change {
	return events.Change{
		BookingID:  "b1",
		Number:     "BK-20250317-ABCD",
		ProviderID: "p1",
		ClientID:   "c1",
		From:       from,
		To:         to,
		Actor:      actor,
		At:         at,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestPublisher_Notify(t *testing.T) {
	bookingEvents := &fakeProducer{}
	p := NewPublisher(bookingEvents, &fakeProducer{}, "bookings")

	ev := events.BookingConfirmed{
		Change:     change(model.StatusPending, model.StatusConfirmed, model.Actor{ID: "p1", Role: model.PartyProvider}),
		PaymentRef: "pi_123",
		Amount:     model.MustMoney("35.50"),
		Currency:   "EUR",
	}
	require.NoError(t, p.Notify(context.Background(), ev))
	require.Len(t, bookingEvents.messages, 1)

	msg := bookingEvents.messages[0]
	assert.Equal(t, "b1", msg.Key)
	assert.Equal(t, events.NameBookingConfirmed, msg.GetEventType())
	assert.Equal(t, "b1", msg.GetBookingID())
	assert.Equal(t, "bookings", msg.Headers[kafka.HeaderSource])
	assert.Equal(t, SchemaVersion, msg.Headers[kafka.HeaderSchemaVersion])

	decoded, err := events.Decode(msg.Value)
	require.NoError(t, err)
	confirmed, ok := decoded.(events.BookingConfirmed)
	require.True(t, ok)
	assert.Equal(t, "pi_123", confirmed.PaymentRef)
	assert.True(t, confirmed.Amount.Equal(ev.Amount.Decimal))
}

func TestPublisher_NotifyError(t *testing.T) {
	p := NewPublisher(&fakeProducer{err: errors.New("broker down")}, &fakeProducer{}, "bookings")

	err := p.Notify(context.Background(), events.BookingStarted{Change: change(model.StatusConfirmed, model.StatusInProgress, model.SystemActor())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "b1")
}

func TestPublisher_TrackConversion(t *testing.T) {
	conversions := &fakeProducer{}
	p := NewPublisher(&fakeProducer{}, conversions, "bookings")

	ev := events.BookingCompleted{
		Change:   change(model.StatusInProgress, model.StatusCompleted, model.Actor{ID: "p1", Role: model.PartyProvider}),
		Amount:   model.MustMoney("80.00"),
		Currency: "EUR",
	}
	require.NoError(t, p.TrackConversion(context.Background(), ev))
	require.Len(t, conversions.messages, 1)

	msg := conversions.messages[0]
	assert.Equal(t, "p1", msg.Key)

	var got Conversion
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "b1", got.BookingID)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "80", got.Amount.String())
	assert.True(t, got.CompletedAt.Equal(at))
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(testLogger())
	ctx := context.Background()

	assert.NoError(t, sink.Notify(ctx, events.BookingRejected{Change: change(model.StatusPending, model.StatusRejected, model.SystemActor())}))
	assert.NoError(t, sink.TrackConversion(ctx, events.BookingCompleted{Change: change(model.StatusInProgress, model.StatusCompleted, model.SystemActor())}))
}

func encode(t *testing.T, ev events.Event) kafka.Message {
	t.Helper()
	data, err := events.Encode(ev)
	require.NoError(t, err)
	return kafka.Message{Key: ev.AggregateID(), Value: data, Headers: map[string]string{}}
}

func TestDispatcher_Recipients(t *testing.T) {
	client := model.Actor{ID: "c1", Role: model.PartyClient}
	provider := model.Actor{ID: "p1", Role: model.PartyProvider}
	slot := model.Slot{Date: "2025-03-20", Start: 600, DurationMinutes: 60}

	tests := []struct {
		name      string
		ev        events.Event
		recipient string
		template  string
	}{
		{
			name:      "created goes to provider",
			ev:        events.BookingCreated{Change: change("", model.StatusPending, client), Slot: slot, TotalPrice: model.MustMoney("40"), Currency: "EUR"},
			recipient: "p1",
			template:  TemplateNewBooking,
		},
		{
			name:      "confirmed goes to client",
			ev:        events.BookingConfirmed{Change: change(model.StatusPending, model.StatusConfirmed, provider)},
			recipient: "c1",
			template:  TemplateConfirmed,
		},
		{
			name:      "rejected goes to client",
			ev:        events.BookingRejected{Change: change(model.StatusPending, model.StatusRejected, provider)},
			recipient: "c1",
			template:  TemplateRejected,
		},
		{
			name:      "completed asks client for rating",
			ev:        events.BookingCompleted{Change: change(model.StatusInProgress, model.StatusCompleted, provider), RatingHook: events.RatingHook{OpenUntil: at.Add(72 * time.Hour)}},
			recipient: "c1",
			template:  TemplateRateProvider,
		},
		{
			name:      "client cancellation goes to provider",
			ev:        events.BookingCancelled{Change: change(model.StatusConfirmed, model.StatusCancelled, client), CancelledBy: model.PartyClient},
			recipient: "p1",
			template:  TemplateCancelled,
		},
		{
			name:      "provider cancellation goes to client",
			ev:        events.BookingCancelled{Change: change(model.StatusPending, model.StatusCancelled, provider), CancelledBy: model.PartyProvider},
			recipient: "c1",
			template:  TemplateCancelled,
		},
		{
			name:      "reschedule by client goes to provider",
			ev:        events.BookingRescheduled{Change: change(model.StatusPending, model.StatusPending, client), Previous: slot, Slot: slot},
			recipient: "p1",
			template:  TemplateRescheduled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			d := NewDispatcher(sender, testLogger())

			require.NoError(t, d.Handle(context.Background(), encode(t, tt.ev)))
			require.Len(t, sender.sent, 1)
			assert.Equal(t, tt.recipient, sender.sent[0].RecipientID)
			assert.Equal(t, tt.template, sender.sent[0].Template)
			assert.Equal(t, "b1", sender.sent[0].BookingID)
		})
	}
}

func TestDispatcher_Errors(t *testing.T) {
	t.Run("garbage is permanent", func(t *testing.T) {
		d := NewDispatcher(&fakeSender{}, testLogger())
		err := d.Handle(context.Background(), kafka.Message{Value: []byte("{nope"), Headers: map[string]string{}})
		require.Error(t, err)
		assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
	})

	t.Run("send failure is retried", func(t *testing.T) {
		d := NewDispatcher(&fakeSender{err: errors.New("smtp timeout")}, testLogger())
		ev := events.BookingStarted{Change: change(model.StatusConfirmed, model.StatusInProgress, model.SystemActor())}
		err := d.Handle(context.Background(), encode(t, ev))
		require.Error(t, err)
		assert.Equal(t, kafka.ErrorTypeTransient, kafka.ClassifyError(err))
	})
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(testLogger()).Send(context.Background(), Notification{RecipientID: "c1", Template: TemplateConfirmed}))
}
