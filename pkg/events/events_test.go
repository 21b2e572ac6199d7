package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2025, 3, 17, 8, 0, 0, 0, time.UTC)

func change(from, to model.BookingStatus) Change {
	return Change{
		BookingID:  "b1",
		Number:     "BK20250317-ABCDEF",
		ProviderID: "p1",
		ClientID:   "c1",
		From:       from,
		To:         to,
		Actor:      model.Actor{ID: "c1", Role: model.PartyClient},
		At:         at,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard, Service: "test"})
}

func TestEncodeDecode(t *testing.T) {
	evs := []Event{
		BookingCreated{
			Change:     change("", model.StatusPending),
			Slot:       model.NewSlot("2025-03-17", 600, 660),
			TotalPrice: model.MustMoney("40.00"),
			Currency:   "EUR",
		},
		BookingCancelled{
			Change:      change(model.StatusConfirmed, model.StatusCancelled),
			CancelledBy: model.PartyClient,
			PaymentRef:  "pi_123",
			Amount:      model.MustMoney("40.00"),
			Currency:    "EUR",
		},
		BookingRescheduled{
			Change:   change(model.StatusPending, model.StatusPending),
			Previous: model.NewSlot("2025-03-17", 600, 660),
			Slot:     model.NewSlot("2025-03-18", 540, 600),
		},
	}

	for _, ev := range evs {
		t.Run(ev.EventName(), func(t *testing.T) {
			data, err := Encode(ev)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.IsType(t, ev, decoded)
			assert.Equal(t, ev.EventName(), decoded.EventName())
			assert.Equal(t, "b1", decoded.AggregateID())
			assert.True(t, decoded.OccurredAt().Equal(at))
			assert.Equal(t, ev.Transition().To, decoded.Transition().To)
		})
	}

	_, err := Decode([]byte(`{"name":"booking.exploded","payload":{}}`))
	assert.Error(t, err)
}

func TestBookingCancelled_Refundable(t *testing.T) {
	paid := BookingCancelled{Change: change(model.StatusConfirmed, model.StatusCancelled), PaymentRef: "pi_1"}
	assert.True(t, paid.Refundable())

	pending := BookingCancelled{Change: change(model.StatusPending, model.StatusCancelled), PaymentRef: "pi_1"}
	assert.False(t, pending.Refundable(), "nothing is captured before confirmation")

	unpaid := BookingCancelled{Change: change(model.StatusConfirmed, model.StatusCancelled)}
	assert.False(t, unpaid.Refundable())
}

func TestHistoryOf(t *testing.T) {
	ev := BookingRejected{Change: change(model.StatusPending, model.StatusRejected)}
	ev.Reason = "fully booked"

	h := HistoryOf(ev, "h1")
	assert.Equal(t, "h1", h.ID)
	assert.Equal(t, NameBookingRejected, h.Event)
	assert.Equal(t, model.StatusPending, h.From)
	assert.Equal(t, model.StatusRejected, h.To)
	assert.Equal(t, "fully booked", h.Reason)
	assert.Equal(t, model.PartyClient, h.ActorRole)
}

func TestBus_TypedSubscribers(t *testing.T) {
	bus := NewBus(testLogger())

	var (
		mu        sync.Mutex
		confirmed []string
		all       int32
	)
	Subscribe(bus, "confirm-only", func(_ context.Context, ev BookingConfirmed) error {
		mu.Lock()
		defer mu.Unlock()
		confirmed = append(confirmed, ev.BookingID)
		return nil
	})
	bus.SubscribeAll("counter", func(context.Context, Event) error {
		atomic.AddInt32(&all, 1)
		return nil
	})

	bus.Publish(context.Background(), BookingCreated{Change: change("", model.StatusPending)})
	bus.Publish(context.Background(), BookingConfirmed{Change: change(model.StatusPending, model.StatusConfirmed)})
	bus.Wait()

	assert.Equal(t, []string{"b1"}, confirmed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&all))
}

func TestBus_FailingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus(testLogger())

	var delivered int32
	bus.SubscribeAll("fails", func(context.Context, Event) error { return errors.New("smtp down") })
	bus.SubscribeAll("panics", func(context.Context, Event) error { panic("boom") })
	bus.SubscribeAll("works", func(context.Context, Event) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, BookingStarted{Change: change(model.StatusConfirmed, model.StatusInProgress)})
	cancel()
	bus.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))
}
