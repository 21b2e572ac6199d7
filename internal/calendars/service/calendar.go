package service

import (
	"context"
	"errors"
	"strings"
	"time"

	calendarerrors "masterbook/internal/calendars/errors"
	"masterbook/internal/calendars/repository"
	"masterbook/internal/calendars/validator"
	"masterbook/pkg/config"
	apperrors "masterbook/pkg/errors"
	"masterbook/pkg/model"
	"masterbook/pkg/sanitizer"
)

type CalendarService interface {
	Get(ctx context.Context, actor model.Actor, providerID string) (*model.Calendar, error)
	Put(ctx context.Context, actor model.Actor, providerID string, req *model.CalendarRequest) (*model.Calendar, error)
	AddException(ctx context.Context, actor model.Actor, providerID string, ex *model.CalendarException) (*model.Calendar, error)
	RemoveException(ctx context.Context, actor model.Actor, providerID string, date model.Date) (*model.Calendar, error)
	Delete(ctx context.Context, actor model.Actor, providerID string) error
}

type calendarService struct {
	repo      repository.CalendarRepository
	validator *validator.CalendarValidator
	cfg       *config.Config
}

func NewCalendarService(
	repo repository.CalendarRepository,
	validator *validator.CalendarValidator,
	cfg *config.Config,
) CalendarService {
	return &calendarService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

// Get is open to every identified party; clients read working hours too.
func (s *calendarService) Get(ctx context.Context, actor model.Actor, providerID string) (*model.Calendar, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	return s.find(ctx, providerID)
}

func (s *calendarService) Put(ctx context.Context, actor model.Actor, providerID string, req *model.CalendarRequest) (*model.Calendar, error) {
	if err := authorize(actor, providerID); err != nil {
		return nil, err
	}

	cal := s.fromRequest(providerID, req)
	if err := s.validator.Validate(cal); err != nil {
		s.cfg.Log.Warn("Calendar validation failed",
			"provider_id", providerID,
			"error", err,
		)
		return nil, invalidConfiguration(err)
	}

	existing, err := s.repo.FindByProvider(ctx, providerID)
	switch {
	case err == nil:
		cal.CreatedAt = existing.CreatedAt
	case errors.Is(err, calendarerrors.ErrNotFound):
		cal.CreatedAt = time.Time{}
	default:
		s.cfg.Log.Error("Failed to load calendar", "provider_id", providerID, "error", err)
		return nil, apperrors.Internal("Failed to save calendar", err)
	}

	if err := s.repo.Save(ctx, cal); err != nil {
		s.cfg.Log.Error("Failed to save calendar",
			"provider_id", providerID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to save calendar", err)
	}

	s.cfg.Log.Info("Calendar saved successfully",
		"provider_id", providerID,
		"weekdays", len(cal.Weekly),
		"exceptions", len(cal.Exceptions),
		"buffer_minutes", cal.BufferMinutes,
		"time_zone", cal.TimeZone,
	)
	return cal, nil
}

func (s *calendarService) AddException(ctx context.Context, actor model.Actor, providerID string, ex *model.CalendarException) (*model.Calendar, error) {
	if err := authorize(actor, providerID); err != nil {
		return nil, err
	}

	ex.Date = model.Date(strings.TrimSpace(string(ex.Date)))
	ex.Reason = sanitizer.TrimAndNormalize(ex.Reason)
	if err := s.validator.ValidateException(ex); err != nil {
		return nil, invalidConfiguration(err)
	}

	if err := s.repo.AddException(ctx, providerID, *ex); err != nil {
		switch {
		case errors.Is(err, calendarerrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Calendar", providerID)
		case errors.Is(err, calendarerrors.ErrDuplicateException):
			return nil, apperrors.Conflict("An exception already exists for " + ex.Date.String())
		}
		s.cfg.Log.Error("Failed to add calendar exception",
			"provider_id", providerID,
			"date", ex.Date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to add calendar exception", err)
	}

	s.cfg.Log.Info("Calendar exception added",
		"provider_id", providerID,
		"date", ex.Date,
		"kind", ex.Kind,
	)
	return s.find(ctx, providerID)
}

func (s *calendarService) RemoveException(ctx context.Context, actor model.Actor, providerID string, date model.Date) (*model.Calendar, error) {
	if err := authorize(actor, providerID); err != nil {
		return nil, err
	}

	cal, err := s.find(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if _, ok := cal.ExceptionFor(date); !ok {
		return nil, apperrors.NotFoundWithID("Calendar exception", date.String())
	}

	if err := s.repo.RemoveException(ctx, providerID, date); err != nil {
		if errors.Is(err, calendarerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Calendar", providerID)
		}
		s.cfg.Log.Error("Failed to remove calendar exception",
			"provider_id", providerID,
			"date", date,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to remove calendar exception", err)
	}

	s.cfg.Log.Info("Calendar exception removed", "provider_id", providerID, "date", date)
	return s.find(ctx, providerID)
}

// Delete drops the calendar only; bookings already made stay as they are.
func (s *calendarService) Delete(ctx context.Context, actor model.Actor, providerID string) error {
	if err := authorize(actor, providerID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, providerID); err != nil {
		if errors.Is(err, calendarerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Calendar", providerID)
		}
		s.cfg.Log.Error("Failed to delete calendar",
			"provider_id", providerID,
			"error", err,
		)
		return apperrors.Internal("Failed to delete calendar", err)
	}

	s.cfg.Log.Info("Calendar deleted successfully", "provider_id", providerID)
	return nil
}

func (s *calendarService) find(ctx context.Context, providerID string) (*model.Calendar, error) {
	if providerID == "" {
		return nil, apperrors.InvalidInput("Provider ID cannot be empty")
	}

	cal, err := s.repo.FindByProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, calendarerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Calendar", providerID)
		}
		s.cfg.Log.Error("Failed to get calendar",
			"provider_id", providerID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve calendar", err)
	}
	return cal, nil
}

func (s *calendarService) fromRequest(providerID string, req *model.CalendarRequest) *model.Calendar {
	cal := &model.Calendar{
		ProviderID:    providerID,
		Weekly:        req.Weekly,
		Exceptions:    req.Exceptions,
		BufferMinutes: s.cfg.DefaultBufferMin,
		TimeZone:      strings.TrimSpace(req.TimeZone),
	}
	if req.BufferMinutes != nil {
		cal.BufferMinutes = *req.BufferMinutes
	}
	if cal.TimeZone == "" {
		cal.TimeZone = s.cfg.DefaultTimeZone
	}
	// Stored as arrays so exceptions can be pushed later.
	if cal.Weekly == nil {
		cal.Weekly = []model.DayWindows{}
	}
	if cal.Exceptions == nil {
		cal.Exceptions = []model.CalendarException{}
	}
	for i := range cal.Exceptions {
		cal.Exceptions[i].Date = model.Date(strings.TrimSpace(string(cal.Exceptions[i].Date)))
		cal.Exceptions[i].Reason = sanitizer.TrimAndNormalize(cal.Exceptions[i].Reason)
	}
	return cal
}

func checkActor(actor model.Actor) error {
	if strings.TrimSpace(actor.ID) == "" || !actor.Role.Valid() {
		return apperrors.Unauthorized("A valid party identity is required")
	}
	return nil
}

// authorize lets a provider manage only its own calendar.
func authorize(actor model.Actor, providerID string) error {
	if err := checkActor(actor); err != nil {
		return err
	}
	if providerID == "" {
		return apperrors.InvalidInput("Provider ID cannot be empty")
	}
	switch actor.Role {
	case model.PartySystem:
		return nil
	case model.PartyProvider:
		if actor.ID == providerID {
			return nil
		}
	}
	return apperrors.Forbidden("Only the provider can change this calendar")
}

func invalidConfiguration(err error) error {
	return apperrors.InvalidConfiguration("Calendar configuration is invalid", map[string]any{
		"error": err.Error(),
	})
}
