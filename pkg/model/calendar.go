package model

import (
	"sort"
	"time"
)

type ExceptionKind string

const (
	ExceptionBlocked  ExceptionKind = "blocked"
	ExceptionExtended ExceptionKind = "extended"
)

type DayWindows struct {
	Weekday time.Weekday `json:"weekday" bson:"weekday" validate:"min=0,max=6"`
	Windows []Window     `json:"windows" bson:"windows" validate:"dive"`
}

// CalendarException replaces the weekly lookup for a single date.
// Blocked exceptions carry no windows.
type CalendarException struct {
	Date    Date          `json:"date" bson:"date" validate:"required,iso_date"`
	Kind    ExceptionKind `json:"kind" bson:"kind" validate:"required,oneof=blocked extended"`
	Windows []Window      `json:"windows,omitempty" bson:"windows,omitempty" validate:"dive"`
	Reason  string        `json:"reason,omitempty" bson:"reason,omitempty" validate:"omitempty,max=200"`
}

// Calendar holds one provider's recurring working hours, date overrides and
// the buffer kept free around each booking.
type Calendar struct {
	ProviderID    string              `json:"provider_id" bson:"_id" validate:"required,max=64"`
	Weekly        []DayWindows        `json:"weekly" bson:"weekly" validate:"dive"`
	Exceptions    []CalendarException `json:"exceptions" bson:"exceptions" validate:"dive"`
	BufferMinutes int                 `json:"buffer_minutes" bson:"buffer_minutes" validate:"min=0,max=240"`
	TimeZone      string              `json:"time_zone" bson:"time_zone" validate:"required,timezone"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" bson:"updated_at"`
}

// Location falls back to UTC when the stored zone cannot be loaded.
func (c *Calendar) Location() *time.Location {
	if c == nil || c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Calendar) ExceptionFor(date Date) (CalendarException, bool) {
	for _, ex := range c.Exceptions {
		if ex.Date == date {
			return ex, true
		}
	}
	return CalendarException{}, false
}

// WindowsFor returns the working windows for date ordered by start.
// An exception for the date replaces the weekly windows entirely.
func (c *Calendar) WindowsFor(date Date) []Window {
	if c == nil {
		return nil
	}

	var src []Window
	if ex, ok := c.ExceptionFor(date); ok {
		if ex.Kind == ExceptionBlocked {
			return nil
		}
		src = ex.Windows
	} else {
		wd := date.Weekday()
		for _, day := range c.Weekly {
			if day.Weekday == wd {
				src = append(src, day.Windows...)
			}
		}
	}

	out := make([]Window, 0, len(src))
	for _, w := range src {
		if w.Valid() {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// CalendarRequest is the body of a calendar replacement. A missing buffer
// falls back to the configured default, an explicit 0 is kept.
type CalendarRequest struct {
	Weekly        []DayWindows        `json:"weekly"`
	Exceptions    []CalendarException `json:"exceptions"`
	BufferMinutes *int                `json:"buffer_minutes"`
	TimeZone      string              `json:"time_zone"`
}
