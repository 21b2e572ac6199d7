package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
	ClockLayout   = "15:04"
)

// Clock is a time of day expressed in minutes since midnight.
// 24:00 is accepted as the end of a working window.
type Clock int

func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string in HH:MM format")
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Date is a calendar date in YYYY-MM-DD form, without a time zone.
type Date string

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

func (d Date) String() string {
	return string(d)
}

func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

// Midnight returns the start of the date in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, string(d), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) Weekday() time.Weekday {
	return d.Midnight(time.UTC).Weekday()
}

// At returns the instant at clock c on the date in loc.
func (d Date) At(c Clock, loc *time.Location) time.Time {
	m := d.Midnight(loc)
	return time.Date(m.Year(), m.Month(), m.Day(), 0, int(c), 0, 0, m.Location())
}

func (d Date) Before(other Date) bool {
	return d < other
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n))
}

// Window is a half-open [Start, End) interval within one day.
type Window struct {
	Start Clock `json:"start" bson:"start"`
	End   Clock `json:"end" bson:"end"`
}

func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

func (w Window) Valid() bool {
	return w.Start.Valid() && w.End.Valid() && w.Start < w.End
}

func (w Window) Contains(o Window) bool {
	return w.Start <= o.Start && o.End <= w.End
}

// Overlaps reports whether w intersects o once o is widened by bufferMinutes
// on both sides. Intervals are half-open, so touching edges do not overlap.
// Every conflict check in the system goes through this rule.
func (w Window) Overlaps(o Window, bufferMinutes int) bool {
	buf := Clock(bufferMinutes)
	return w.Start < o.End+buf && o.Start-buf < w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}
