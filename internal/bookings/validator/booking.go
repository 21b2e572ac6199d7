package validator

import (
	"errors"
	"fmt"
	"strings"

	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("hhmm", validateClock); err != nil {
		log.Fatal("Failed to register 'hhmm' validator",
			"error", err,
		)
	}
	if err := v.RegisterValidation("iso_date", validateISODate); err != nil {
		log.Fatal("Failed to register 'iso_date' validator",
			"error", err,
		)
	}
	if err := v.RegisterValidation("party", validateParty); err != nil {
		log.Fatal("Failed to register 'party' validator",
			"error", err,
		)
	}

	log.Info("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := model.ParseClock(fl.Field().String())
	return err == nil
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

func validateParty(fl validator.FieldLevel) bool {
	return model.Party(fl.Field().String()).Valid()
}

func (v *BookingValidator) ValidateCreate(req *model.CreateBookingRequest) error {
	if err := v.check(req); err != nil {
		return err
	}

	var errs ValidationErrors
	if w := clockWindow(req.StartTime, req.EndTime); !w.Valid() {
		errs = append(errs, ValidationError{
			Field:   "EndTime",
			Message: "end_time must be after start_time",
		})
	}
	if req.BasePrice.IsNegative() {
		errs = append(errs, ValidationError{Field: "BasePrice", Message: "base_price cannot be negative"})
	}
	if req.TotalPrice.IsNegative() {
		errs = append(errs, ValidationError{Field: "TotalPrice", Message: "total_price cannot be negative"})
	} else if req.TotalPrice.LessThan(req.BasePrice.Decimal) {
		errs = append(errs, ValidationError{Field: "TotalPrice", Message: "total_price cannot be lower than base_price"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *BookingValidator) ValidateReschedule(req *model.RescheduleRequest) error {
	if err := v.check(req); err != nil {
		return err
	}

	if w := clockWindow(req.StartTime, req.EndTime); !w.Valid() {
		return ValidationErrors{
			ValidationError{
				Field:   "EndTime",
				Message: "end_time must be after start_time",
			},
		}
	}
	return nil
}

func (v *BookingValidator) ValidateTransition(req *model.TransitionRequest) error {
	return v.check(req)
}

// ValidateActor checks the identity attached to a request by the gateway.
func (v *BookingValidator) ValidateActor(actor model.Actor) error {
	return v.check(&struct {
		ID   string `validate:"required,max=64"`
		Role string `validate:"required,party"`
	}{ID: actor.ID, Role: string(actor.Role)})
}

func (v *BookingValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

// clockWindow parses already tag-checked clock strings.
func clockWindow(start, end string) model.Window {
	s, _ := model.ParseClock(start)
	e, _ := model.ParseClock(end)
	return model.Window{Start: s, End: e}
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "len":
			message = fmt.Sprintf("%s must be exactly %s characters", err.Field(), err.Param())
		case "alpha":
			message = fmt.Sprintf("%s must contain letters only", err.Field())
		case "hhmm":
			message = fmt.Sprintf("%s must be a time of day in HH:MM format", err.Field())
		case "iso_date":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "party":
			message = fmt.Sprintf("%s must be one of: client, provider, system", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
