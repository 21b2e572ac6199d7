package validator

import (
	"errors"
	"fmt"
	"strings"

	calendarerrors "masterbook/internal/calendars/errors"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Err     error  `json:"-"`
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

// Unwrap exposes the sentinel causes so callers can use errors.Is.
func (v ValidationErrors) Unwrap() []error {
	var causes []error
	for _, err := range v {
		if err.Err != nil {
			causes = append(causes, err.Err)
		}
	}
	return causes
}

type CalendarValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewCalendarValidator(log *logger.Logger) *CalendarValidator {
	v := validator.New()

	if err := v.RegisterValidation("iso_date", validateISODate); err != nil {
		log.Fatal("Failed to register 'iso_date' validator", "error", err)
	}

	log.Info("Calendar validator initialized successfully")

	return &CalendarValidator{
		validate: v,
		logger:   log,
	}
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := model.ParseDate(fl.Field().String())
	return err == nil
}

func (v *CalendarValidator) Validate(cal *model.Calendar) error {
	if err := v.check(cal); err != nil {
		return err
	}

	var errs ValidationErrors
	seenDays := make(map[int]bool)
	for _, day := range cal.Weekly {
		field := fmt.Sprintf("Weekly[%s]", day.Weekday)
		if seenDays[int(day.Weekday)] {
			errs = append(errs, ValidationError{Field: field, Message: "weekday is listed more than once"})
			continue
		}
		seenDays[int(day.Weekday)] = true
		errs = append(errs, checkWindows(field, day.Windows)...)
	}

	seenDates := make(map[model.Date]bool)
	for _, ex := range cal.Exceptions {
		if seenDates[ex.Date] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("Exceptions[%s]", ex.Date),
				Message: "date has more than one exception",
				Err:     calendarerrors.ErrDuplicateException,
			})
			continue
		}
		seenDates[ex.Date] = true
		errs = append(errs, checkException(ex)...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *CalendarValidator) ValidateException(ex *model.CalendarException) error {
	if err := v.check(ex); err != nil {
		return err
	}
	if errs := checkException(*ex); len(errs) > 0 {
		return errs
	}
	return nil
}

func checkException(ex model.CalendarException) ValidationErrors {
	field := fmt.Sprintf("Exceptions[%s]", ex.Date)
	switch ex.Kind {
	case model.ExceptionBlocked:
		if len(ex.Windows) > 0 {
			return ValidationErrors{{Field: field, Message: "blocked dates cannot carry windows"}}
		}
	case model.ExceptionExtended:
		if len(ex.Windows) == 0 {
			return ValidationErrors{{Field: field, Message: "extended dates need at least one window"}}
		}
		return checkWindows(field, ex.Windows)
	}
	return nil
}

// checkWindows rejects empty, out of range and overlapping windows of one day.
func checkWindows(field string, windows []model.Window) ValidationErrors {
	var errs ValidationErrors
	for i, w := range windows {
		if !w.Valid() {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("window %s must end after it starts and stay within 00:00-24:00", w),
			})
			continue
		}
		for _, o := range windows[:i] {
			if o.Valid() && w.Overlaps(o, 0) {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("window %s overlaps %s", w, o),
					Err:     calendarerrors.ErrOverlappingWindows,
				})
			}
		}
	}
	return errs
}

func (v *CalendarValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *CalendarValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "timezone":
			message = fmt.Sprintf("%s must be an IANA time zone such as Europe/Berlin", err.Field())
		case "iso_date":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
