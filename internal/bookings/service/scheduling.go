package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"masterbook/internal/availability"
	bookingserrors "masterbook/internal/bookings/errors"
	"masterbook/internal/bookings/repository"
	"masterbook/internal/bookings/statemachine"
	"masterbook/internal/bookings/validator"
	"masterbook/pkg/config"
	apperrors "masterbook/pkg/errors"
	"masterbook/pkg/events"
	"masterbook/pkg/model"
	"masterbook/pkg/sanitizer"

	"github.com/google/uuid"
)

const MaxSearchDays = 60

type SchedulingService interface {
	GetAvailableSlots(ctx context.Context, providerID string, date model.Date, durationMinutes int) ([]model.Slot, error)
	NextAvailableSlot(ctx context.Context, providerID string, from model.Date, durationMinutes, maxDays int) (*model.Slot, error)

	CreateBooking(ctx context.Context, actor model.Actor, req *model.CreateBookingRequest) (*model.Booking, error)
	ConfirmBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	RejectBooking(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error)
	StartBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	CompleteBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	CancelBooking(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error)
	RescheduleBooking(ctx context.Context, actor model.Actor, id string, req *model.RescheduleRequest) (*model.Booking, error)

	GetBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error)
	ListBookings(ctx context.Context, actor model.Actor, q model.BookingQuery) ([]*model.Booking, int64, error)
	History(ctx context.Context, actor model.Actor, id string) ([]*model.BookingHistory, error)
}

type schedulingService struct {
	store     repository.BookingStore
	engine    *availability.Engine
	machine   *statemachine.Machine
	bus       *events.Bus
	validator *validator.BookingValidator
	cfg       *config.Config
}

func NewSchedulingService(
	store repository.BookingStore,
	engine *availability.Engine,
	machine *statemachine.Machine,
	bus *events.Bus,
	validator *validator.BookingValidator,
	cfg *config.Config,
) SchedulingService {
	return &schedulingService{
		store:     store,
		engine:    engine,
		machine:   machine,
		bus:       bus,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *schedulingService) GetAvailableSlots(ctx context.Context, providerID string, date model.Date, durationMinutes int) ([]model.Slot, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}

	slots, err := s.engine.ComputeSlots(ctx, providerID, date, durationMinutes)
	if err != nil {
		return nil, s.translate(err, "")
	}
	return slots, nil
}

func (s *schedulingService) NextAvailableSlot(ctx context.Context, providerID string, from model.Date, durationMinutes, maxDays int) (*model.Slot, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}
	if maxDays > MaxSearchDays {
		return nil, apperrors.InvalidSlotRequest(fmt.Sprintf("search is limited to %d days", MaxSearchDays))
	}

	slot, err := s.engine.NextAvailable(ctx, providerID, from, durationMinutes, maxDays)
	if err != nil {
		return nil, s.translate(err, "")
	}
	if slot == nil {
		return nil, apperrors.NotFound("Available slot")
	}
	return slot, nil
}

func (s *schedulingService) CreateBooking(ctx context.Context, actor model.Actor, req *model.CreateBookingRequest) (*model.Booking, error) {
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}
	s.sanitizeCreate(req)
	if err := s.validator.ValidateCreate(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed",
			"provider_id", req.ProviderID,
			"client_id", req.ClientID,
			"error", err,
		)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	slot := requestSlot(req.Date, req.StartTime, req.EndTime)
	b := &model.Booking{
		ID:              uuid.NewString(),
		ProviderID:      req.ProviderID,
		ClientID:        req.ClientID,
		ServiceID:       req.ServiceID,
		ServiceName:     req.ServiceName,
		Date:            slot.Date,
		StartTime:       slot.Start,
		EndTime:         slot.End,
		DurationMinutes: slot.DurationMinutes,
		BasePrice:       req.BasePrice,
		TotalPrice:      req.TotalPrice,
		Currency:        strings.ToUpper(req.Currency),
		PaymentRef:      req.PaymentRef,
		Notes:           req.Notes,
	}
	created, err := s.machine.Create(b, actor)
	if err != nil {
		return nil, s.translate(err, "")
	}

	cal, err := s.engine.CheckSlot(ctx, b.ProviderID, slot, "")
	if err != nil {
		return nil, s.translate(err, "")
	}

	var stored *model.Booking
	attempt := 0
	err = s.withRetry(ctx, "create booking", func() error {
		if attempt > 0 {
			// a failed insert may have collided on the number
			b.Number = model.NewBookingNumber(b.CreatedAt)
		}
		attempt++
		created.Number = b.Number
		var reserveErr error
		stored, reserveErr = s.store.Reserve(ctx, b, cal.BufferMinutes, events.HistoryOf(created, uuid.NewString()))
		return reserveErr
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create booking",
			"provider_id", b.ProviderID,
			"date", b.Date,
			"slot", b.Window().String(),
			"error", err,
		)
		return nil, s.translate(err, b.ID)
	}

	created.Number = stored.Number
	s.bus.Publish(ctx, created)

	s.cfg.Log.Info("Booking created successfully",
		"id", stored.ID,
		"number", stored.Number,
		"provider_id", stored.ProviderID,
		"client_id", stored.ClientID,
		"date", stored.Date,
		"slot", stored.Window().String(),
	)
	return stored, nil
}

func (s *schedulingService) ConfirmBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	return s.transition(ctx, actor, id, statemachine.OpConfirm, 0, func(b *model.Booking) (events.Event, error) {
		return s.machine.Confirm(b, actor)
	})
}

func (s *schedulingService) RejectBooking(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error) {
	reason, err := s.checkReason(reason)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, statemachine.OpReject, 0, func(b *model.Booking) (events.Event, error) {
		return s.machine.Reject(b, actor, reason)
	})
}

func (s *schedulingService) StartBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	current, err := s.visibleBooking(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	loc, err := s.location(ctx, current.ProviderID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, statemachine.OpStart, 0, func(b *model.Booking) (events.Event, error) {
		return s.machine.Start(b, actor, loc)
	})
}

func (s *schedulingService) CompleteBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	return s.transition(ctx, actor, id, statemachine.OpComplete, 0, func(b *model.Booking) (events.Event, error) {
		return s.machine.Complete(b, actor)
	})
}

func (s *schedulingService) CancelBooking(ctx context.Context, actor model.Actor, id, reason string) (*model.Booking, error) {
	reason, err := s.checkReason(reason)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, statemachine.OpCancel, 0, func(b *model.Booking) (events.Event, error) {
		return s.machine.Cancel(b, actor, reason)
	})
}

// RescheduleBooking validates the new slot against the calendar first and
// lets the store repeat the overlap check under the provider lock. A failure
// at either step leaves the booking on its original slot.
func (s *schedulingService) RescheduleBooking(ctx context.Context, actor model.Actor, id string, req *model.RescheduleRequest) (*model.Booking, error) {
	if err := s.validator.ValidateReschedule(req); err != nil {
		return nil, apperrors.Validation("Reschedule validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	current, err := s.visibleBooking(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !statemachine.CanApply(statemachine.OpReschedule, current.Status) {
		return nil, s.translate(&statemachine.TransitionError{Operation: statemachine.OpReschedule, From: current.Status}, id)
	}

	slot := requestSlot(req.Date, req.StartTime, req.EndTime)
	cal, err := s.engine.CheckSlot(ctx, current.ProviderID, slot, current.ID)
	if err != nil {
		return nil, s.translate(err, id)
	}

	return s.transition(ctx, actor, id, statemachine.OpReschedule, cal.BufferMinutes, func(b *model.Booking) (events.Event, error) {
		return s.machine.Reschedule(b, actor, slot)
	})
}

func (s *schedulingService) GetBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	return s.visibleBooking(ctx, actor, id)
}

func (s *schedulingService) ListBookings(ctx context.Context, actor model.Actor, q model.BookingQuery) ([]*model.Booking, int64, error) {
	if err := s.validateActor(actor); err != nil {
		return nil, 0, err
	}
	q, err := s.scopeQuery(actor, q)
	if err != nil {
		return nil, 0, err
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.store.Count(ctx, q)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = s.translate(errCount, "")
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.store.Find(ctx, q)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = s.translate(errFind, "")
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *schedulingService) History(ctx context.Context, actor model.Actor, id string) ([]*model.BookingHistory, error) {
	if _, err := s.GetBooking(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	return entries, nil
}

// transition applies one state machine operation atomically and publishes the
// resulting event once the write is durable.
func (s *schedulingService) transition(
	ctx context.Context,
	actor model.Actor,
	id string,
	op statemachine.Operation,
	bufferMinutes int,
	apply func(b *model.Booking) (events.Event, error),
) (*model.Booking, error) {
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	var (
		ev      events.Event
		updated *model.Booking
	)
	err := s.withRetry(ctx, string(op)+" booking", func() error {
		var applyErr error
		updated, applyErr = s.store.Apply(ctx, id, bufferMinutes, func(b *model.Booking) (*model.BookingHistory, error) {
			if !b.VisibleTo(actor) {
				return nil, bookingserrors.ErrNotFound
			}
			e, err := apply(b)
			if err != nil {
				return nil, err
			}
			ev = e
			return events.HistoryOf(e, uuid.NewString()), nil
		})
		return applyErr
	})
	if err != nil {
		s.cfg.Log.Warn("Booking transition failed",
			"id", id,
			"operation", op,
			"actor_role", actor.Role,
			"error", err,
		)
		return nil, s.translate(err, id)
	}

	s.bus.Publish(ctx, ev)

	s.cfg.Log.Info("Booking transitioned",
		"id", updated.ID,
		"operation", op,
		"from", ev.Transition().From,
		"to", updated.Status,
		"actor_role", actor.Role,
	)
	return updated, nil
}

// withRetry repeats fn while the store reports a transient failure.
func (s *schedulingService) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.cfg.PersistenceRetries; attempt++ {
		if attempt > 0 {
			wait := s.cfg.PersistenceRetryBackoff * time.Duration(attempt)
			s.cfg.Log.Warn("Retrying booking write",
				"operation", op,
				"attempt", attempt,
				"backoff", wait,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(wait):
			}
		}

		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	return errors.Is(err, bookingserrors.ErrPersistence) || errors.Is(err, bookingserrors.ErrVersionConflict)
}

// translate maps domain sentinels to the stable error codes of the API.
func (s *schedulingService) translate(err error, id string) error {
	var transitionErr *statemachine.TransitionError

	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return err
	case errors.As(err, &transitionErr):
		appErr := apperrors.InvalidTransition(string(transitionErr.From), string(transitionErr.Operation))
		if transitionErr.Detail != "" {
			appErr.Details["reason"] = transitionErr.Detail
		}
		return appErr
	case errors.Is(err, availability.ErrInvalidSlotRequest):
		return apperrors.InvalidSlotRequest(err.Error())
	case errors.Is(err, availability.ErrSlotUnavailable), errors.Is(err, bookingserrors.ErrTimeConflict):
		return apperrors.SlotUnavailable("The requested time is no longer available")
	case errors.Is(err, statemachine.ErrActorNotAllowed):
		return apperrors.Forbidden(err.Error())
	case errors.Is(err, bookingserrors.ErrNotFound):
		if id == "" {
			return apperrors.NotFound("Booking")
		}
		return apperrors.NotFoundWithID("Booking", id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	case errors.Is(err, bookingserrors.ErrLockTimeout), errors.Is(err, bookingserrors.ErrVersionConflict):
		appErr := apperrors.Conflict("The provider's schedule is busy, please retry")
		appErr.Retryable = true
		return appErr
	case errors.Is(err, bookingserrors.ErrPersistence):
		return apperrors.PersistenceFailure(err)
	}
	return apperrors.Internal("Failed to process booking", err)
}

// visibleBooking loads a booking the actor is a party to. Bookings of other
// parties are reported as missing.
func (s *schedulingService) visibleBooking(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	if err := s.validateActor(actor); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	b, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, id)
	}
	if !b.VisibleTo(actor) {
		return nil, apperrors.NotFoundWithID("Booking", id)
	}
	return b, nil
}

func (s *schedulingService) location(ctx context.Context, providerID string) (*time.Location, error) {
	cal, err := s.engine.Calendar(ctx, providerID)
	if err == nil {
		return cal.Location(), nil
	}
	if !errors.Is(err, availability.ErrInvalidSlotRequest) {
		return nil, s.translate(err, "")
	}

	loc, err := time.LoadLocation(s.cfg.DefaultTimeZone)
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

// scopeQuery restricts a listing to the acting party's own bookings.
func (s *schedulingService) scopeQuery(actor model.Actor, q model.BookingQuery) (model.BookingQuery, error) {
	q.ProviderID = strings.TrimSpace(q.ProviderID)
	q.ClientID = strings.TrimSpace(q.ClientID)

	switch actor.Role {
	case model.PartyClient:
		if q.ClientID != "" && q.ClientID != actor.ID {
			return q, apperrors.Forbidden("clients can only list their own bookings")
		}
		q.ClientID = actor.ID
	case model.PartyProvider:
		if q.ProviderID != "" && q.ProviderID != actor.ID {
			return q, apperrors.Forbidden("providers can only list their own bookings")
		}
		q.ProviderID = actor.ID
	default:
		if q.ProviderID == "" && q.ClientID == "" {
			return q, apperrors.InvalidInput("provider_id or client_id is required")
		}
	}

	if q.From != "" && q.To != "" && q.To.Before(q.From) {
		return q, apperrors.InvalidInput("to must not be before from")
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return q, apperrors.InvalidInput("unknown booking status: " + string(st))
		}
	}

	q.Limit = config.NormalizePaginationLimit(q.Limit)
	q.Offset = config.NormalizeOffset(q.Offset)
	return q, nil
}

func (s *schedulingService) validateActor(actor model.Actor) error {
	if err := s.validator.ValidateActor(actor); err != nil {
		return apperrors.Unauthorized("Invalid party identity")
	}
	return nil
}

func (s *schedulingService) checkReason(reason string) (string, error) {
	req := &model.TransitionRequest{Reason: sanitizer.TrimAndNormalize(reason)}
	if err := s.validator.ValidateTransition(req); err != nil {
		return "", apperrors.Validation("Invalid reason", map[string]any{"error": err.Error()})
	}
	return req.Reason, nil
}

func (s *schedulingService) sanitizeCreate(req *model.CreateBookingRequest) {
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ServiceName = sanitizer.NormalizeName(req.ServiceName)
	req.Notes = sanitizer.TrimAndNormalize(req.Notes)
	req.PaymentRef = strings.TrimSpace(req.PaymentRef)
	req.Currency = sanitizer.NormalizeCurrency(req.Currency)
}

// requestSlot builds a slot from request fields that already passed validation.
func requestSlot(date, start, end string) model.Slot {
	d, _ := model.ParseDate(date)
	st, _ := model.ParseClock(start)
	en, _ := model.ParseClock(end)
	return model.NewSlot(d, st, en)
}
