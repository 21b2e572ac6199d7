package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"masterbook/internal/availability"
	bookingserrors "masterbook/internal/bookings/errors"
	"masterbook/internal/bookings/repository"
	"masterbook/internal/bookings/statemachine"
	"masterbook/internal/bookings/validator"
	calendarerrors "masterbook/internal/calendars/errors"
	"masterbook/pkg/config"
	apperrors "masterbook/pkg/errors"
	"masterbook/pkg/events"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monday model.Date = "2025-03-17"

var (
	client   = model.Actor{ID: "c1", Role: model.PartyClient}
	other    = model.Actor{ID: "c2", Role: model.PartyClient}
	provider = model.Actor{ID: "p1", Role: model.PartyProvider}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fakeCalendars struct {
	cal *model.Calendar
}

func (f fakeCalendars) FindByProvider(_ context.Context, providerID string) (*model.Calendar, error) {
	if f.cal == nil || f.cal.ProviderID != providerID {
		return nil, calendarerrors.ErrNotFound
	}
	return f.cal, nil
}

// flakyStore fails the first failures Reserve/Apply calls with a transient error.
type flakyStore struct {
	repository.BookingStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("%w: connection reset", bookingserrors.ErrPersistence)
	}
	return nil
}

func (f *flakyStore) Reserve(ctx context.Context, b *model.Booking, buffer int, entry *model.BookingHistory) (*model.Booking, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.BookingStore.Reserve(ctx, b, buffer, entry)
}

func (f *flakyStore) Apply(ctx context.Context, id string, buffer int, mutate repository.MutateFunc) (*model.Booking, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.BookingStore.Apply(ctx, id, buffer, mutate)
}

type harness struct {
	svc   SchedulingService
	store repository.BookingStore
	bus   *events.Bus
	clock *testClock
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard, Service: "test"})
}

func weeklyCalendar(buffer int) *model.Calendar {
	return &model.Calendar{
		ProviderID: "p1",
		Weekly: []model.DayWindows{
			{Weekday: time.Monday, Windows: []model.Window{{Start: 540, End: 720}, {Start: 780, End: 1020}}},
		},
		BufferMinutes: buffer,
		TimeZone:      "UTC",
	}
}

func newHarness(t *testing.T, cal *model.Calendar, store repository.BookingStore) *harness {
	t.Helper()
	log := quietLogger()
	clock := &testClock{t: time.Date(2025, 3, 16, 12, 0, 0, 0, time.UTC)}
	if store == nil {
		store = repository.NewMemoryBookingStore()
	}
	cfg := &config.Config{
		Log:                     log,
		PersistenceRetries:      2,
		PersistenceRetryBackoff: time.Millisecond,
		DefaultTimeZone:         "UTC",
	}
	engine := availability.NewEngine(fakeCalendars{cal: cal}, store, availability.Options{
		Granularity: 15,
		LeadTime:    30 * time.Minute,
		Now:         clock.Now,
	})
	bus := events.NewBus(log)
	t.Cleanup(bus.Wait)

	svc := NewSchedulingService(store, engine, statemachine.New(clock.Now), bus, validator.NewBookingValidator(log), cfg)
	return &harness{svc: svc, store: store, bus: bus, clock: clock}
}

func createReq(start, end string) *model.CreateBookingRequest {
	return &model.CreateBookingRequest{
		ProviderID:  "p1",
		ClientID:    "c1",
		ServiceName: "  Beard   trim ",
		Date:        string(monday),
		StartTime:   start,
		EndTime:     end,
		BasePrice:   model.MustMoney("30"),
		TotalPrice:  model.MustMoney("35.50"),
		Currency:    "eur",
		PaymentRef:  "pi_123",
	}
}

func requireCode(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
	return appErr
}

func TestCreateBooking(t *testing.T) {
	h := newHarness(t, weeklyCalendar(15), nil)
	ctx := context.Background()

	b, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, "Beard trim", b.ServiceName)
	assert.Equal(t, "EUR", b.Currency)
	assert.Equal(t, 60, b.DurationMinutes)
	assert.Regexp(t, `^BK20250316-[0-9A-F]{6}$`, b.Number)
	assert.Equal(t, int64(1), b.Version)

	slots, err := h.svc.GetAvailableSlots(ctx, "p1", monday, 60)
	require.NoError(t, err)
	for _, s := range slots {
		assert.False(t, s.Window().Overlaps(b.Window(), 15), "slot %s overlaps the new booking", s)
	}

	history, err := h.svc.History(ctx, client, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, events.NameBookingCreated, history[0].Event)
}

func TestCreateBooking_Rejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		actor model.Actor
		req   *model.CreateBookingRequest
		code  string
	}{
		{name: "malformed time", actor: client, req: createReq("9", "10:00"), code: apperrors.CodeValidation},
		{name: "outside working hours", actor: client, req: createReq("12:00", "13:00"), code: apperrors.CodeInvalidSlotRequest},
		{name: "booking for another client", actor: other, req: createReq("09:00", "10:00"), code: apperrors.CodeForbidden},
		{name: "provider cannot create", actor: provider, req: createReq("09:00", "10:00"), code: apperrors.CodeForbidden},
		{name: "missing identity", actor: model.Actor{}, req: createReq("09:00", "10:00"), code: apperrors.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, weeklyCalendar(0), nil)
			_, err := h.svc.CreateBooking(ctx, tt.actor, tt.req)
			requireCode(t, err, tt.code)
		})
	}

	t.Run("provider without calendar", func(t *testing.T) {
		h := newHarness(t, nil, nil)
		_, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		requireCode(t, err, apperrors.CodeInvalidSlotRequest)
	})

	t.Run("inside lead time", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		h.clock.Set(time.Date(2025, 3, 17, 8, 45, 0, 0, time.UTC))
		_, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		requireCode(t, err, apperrors.CodeInvalidSlotRequest)
	})
}

func TestCreateBooking_ConcurrentSameSlot(t *testing.T) {
	h := newHarness(t, weeklyCalendar(15), nil)
	ctx := context.Background()

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		denied  int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			if apperrors.HasCode(err, apperrors.CodeSlotUnavailable) {
				denied++
				return
			}
			t.Errorf("unexpected error: %v", err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, callers-1, denied)

	active, err := h.store.FindActive(ctx, "p1", monday)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("confirm twice fails the second time", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)

		_, err = h.svc.ConfirmBooking(ctx, provider, b.ID)
		require.NoError(t, err)
		_, err = h.svc.ConfirmBooking(ctx, provider, b.ID)
		appErr := requireCode(t, err, apperrors.CodeInvalidTransition)
		assert.Equal(t, "confirmed", appErr.Details["status"])
	})

	t.Run("read after confirm", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)

		_, err = h.svc.ConfirmBooking(ctx, provider, b.ID)
		require.NoError(t, err)

		got, err := h.svc.GetBooking(ctx, client, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, got.Status)
		require.NotNil(t, got.ConfirmedAt)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.CancelledAt)
	})

	t.Run("cancel while in progress", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)
		_, err = h.svc.ConfirmBooking(ctx, provider, b.ID)
		require.NoError(t, err)

		_, err = h.svc.StartBooking(ctx, provider, b.ID)
		requireCode(t, err, apperrors.CodeInvalidTransition)

		h.clock.Set(time.Date(2025, 3, 17, 10, 2, 0, 0, time.UTC))
		started, err := h.svc.StartBooking(ctx, provider, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInProgress, started.Status)

		_, err = h.svc.CancelBooking(ctx, client, b.ID, "changed my mind")
		requireCode(t, err, apperrors.CodeInvalidTransition)

		got, err := h.svc.GetBooking(ctx, provider, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInProgress, got.Status)

		done, err := h.svc.CompleteBooking(ctx, provider, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, done.Status)
		assert.NotNil(t, done.CompletedAt)
	})

	t.Run("reject frees the slot", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)

		rejected, err := h.svc.RejectBooking(ctx, provider, b.ID, "  fully   booked ")
		require.NoError(t, err)
		assert.Equal(t, model.StatusRejected, rejected.Status)
		assert.Equal(t, "fully booked", rejected.CancellationReason)

		_, err = h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		assert.NoError(t, err)
	})

	t.Run("client cannot confirm", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)

		_, err = h.svc.ConfirmBooking(ctx, client, b.ID)
		requireCode(t, err, apperrors.CodeForbidden)
	})

	t.Run("strangers see nothing", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)

		_, err = h.svc.GetBooking(ctx, other, b.ID)
		requireCode(t, err, apperrors.CodeNotFound)
		_, err = h.svc.CancelBooking(ctx, other, b.ID, "")
		requireCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("unknown booking", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		_, err := h.svc.ConfirmBooking(ctx, provider, "missing")
		requireCode(t, err, apperrors.CodeNotFound)
	})
}

func TestRescheduleBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed booking keeps its status", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(15), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("10:00", "11:00"))
		require.NoError(t, err)
		confirmed, err := h.svc.ConfirmBooking(ctx, provider, b.ID)
		require.NoError(t, err)

		moved, err := h.svc.RescheduleBooking(ctx, client, b.ID, &model.RescheduleRequest{
			Date: string(monday), StartTime: "14:00", EndTime: "15:00",
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, moved.Status)
		assert.Equal(t, model.Clock(840), moved.StartTime)
		assert.Equal(t, model.Clock(900), moved.EndTime)
		assert.Equal(t, 1, moved.RescheduleCount)
		require.NotNil(t, moved.ConfirmedAt)
		assert.True(t, confirmed.ConfirmedAt.Equal(*moved.ConfirmedAt))
	})

	t.Run("collision leaves the original untouched", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(15), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		require.NoError(t, err)
		third := createReq("14:00", "15:00")
		third.ClientID = "c2"
		_, err = h.svc.CreateBooking(ctx, other, third)
		require.NoError(t, err)

		_, err = h.svc.RescheduleBooking(ctx, client, b.ID, &model.RescheduleRequest{
			Date: string(monday), StartTime: "14:30", EndTime: "15:30",
		})
		requireCode(t, err, apperrors.CodeSlotUnavailable)

		got, err := h.svc.GetBooking(ctx, client, b.ID)
		require.NoError(t, err)
		assert.Equal(t, monday, got.Date)
		assert.Equal(t, model.Clock(540), got.StartTime)
		assert.Equal(t, model.Clock(600), got.EndTime)
		assert.Equal(t, 0, got.RescheduleCount)
	})

	t.Run("moving within its own buffer", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(15), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		require.NoError(t, err)

		moved, err := h.svc.RescheduleBooking(ctx, client, b.ID, &model.RescheduleRequest{
			Date: string(monday), StartTime: "09:30", EndTime: "10:30",
		})
		require.NoError(t, err)
		assert.Equal(t, model.Clock(570), moved.StartTime)
	})

	t.Run("terminal booking cannot move", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		require.NoError(t, err)
		_, err = h.svc.CancelBooking(ctx, client, b.ID, "")
		require.NoError(t, err)

		_, err = h.svc.RescheduleBooking(ctx, client, b.ID, &model.RescheduleRequest{
			Date: string(monday), StartTime: "14:00", EndTime: "15:00",
		})
		requireCode(t, err, apperrors.CodeInvalidTransition)
	})

	t.Run("outside working hours", func(t *testing.T) {
		h := newHarness(t, weeklyCalendar(0), nil)
		b, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		require.NoError(t, err)

		_, err = h.svc.RescheduleBooking(ctx, client, b.ID, &model.RescheduleRequest{
			Date: "2025-03-18", StartTime: "09:00", EndTime: "10:00",
		})
		requireCode(t, err, apperrors.CodeInvalidSlotRequest)
	})
}

func TestListBookings(t *testing.T) {
	h := newHarness(t, weeklyCalendar(0), nil)
	ctx := context.Background()

	for _, start := range []string{"09:00", "10:00", "11:00"} {
		_, err := h.svc.CreateBooking(ctx, client, createReq(start, start[:2]+":30"))
		require.NoError(t, err)
	}
	req := createReq("14:00", "15:00")
	req.ClientID = "c2"
	_, err := h.svc.CreateBooking(ctx, other, req)
	require.NoError(t, err)

	mine, total, err := h.svc.ListBookings(ctx, client, model.BookingQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, mine, 2)

	all, total, err := h.svc.ListBookings(ctx, provider, model.BookingQuery{From: monday, To: monday})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	_, _, err = h.svc.ListBookings(ctx, client, model.BookingQuery{ClientID: "c2"})
	requireCode(t, err, apperrors.CodeForbidden)

	_, _, err = h.svc.ListBookings(ctx, model.SystemActor(), model.BookingQuery{})
	requireCode(t, err, apperrors.CodeInvalidInput)

	_, _, err = h.svc.ListBookings(ctx, provider, model.BookingQuery{Statuses: []model.BookingStatus{"lost"}})
	requireCode(t, err, apperrors.CodeInvalidInput)
}

func TestNextAvailableSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, weeklyCalendar(0), nil)

	slot, err := h.svc.NextAvailableSlot(ctx, "p1", "2025-03-16", 60, 7)
	require.NoError(t, err)
	assert.Equal(t, monday, slot.Date)
	assert.Equal(t, model.Clock(540), slot.Start)

	_, err = h.svc.NextAvailableSlot(ctx, "p1", "2025-03-18", 60, 3)
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = h.svc.NextAvailableSlot(ctx, "p1", monday, 60, MaxSearchDays+1)
	requireCode(t, err, apperrors.CodeInvalidSlotRequest)
}

func TestPersistenceRetries(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failures are retried", func(t *testing.T) {
		store := &flakyStore{BookingStore: repository.NewMemoryBookingStore(), failures: 2}
		h := newHarness(t, weeklyCalendar(0), store)

		b, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		require.NoError(t, err)
		assert.Equal(t, 3, store.calls)

		history, err := h.svc.History(ctx, client, b.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("exhausted retries surface a retryable failure", func(t *testing.T) {
		store := &flakyStore{BookingStore: repository.NewMemoryBookingStore(), failures: 10}
		h := newHarness(t, weeklyCalendar(0), store)

		_, err := h.svc.CreateBooking(ctx, client, createReq("09:00", "10:00"))
		appErr := requireCode(t, err, apperrors.CodePersistenceFailure)
		assert.True(t, appErr.Retryable)
		assert.NotContains(t, appErr.Message, "connection reset")
		assert.Equal(t, 3, store.calls)
	})
}

func TestTranslate_LockTimeoutIsRetryableConflict(t *testing.T) {
	s := &schedulingService{}
	err := s.translate(fmt.Errorf("%w: provider p1", bookingserrors.ErrLockTimeout), "b1")
	appErr := requireCode(t, err, apperrors.CodeConflict)
	assert.True(t, appErr.Retryable)
}
