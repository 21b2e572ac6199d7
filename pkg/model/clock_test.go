package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "23:59", want: 1439},
		{in: "24:00", want: MinutesPerDay},
		{in: " 10:15 ", want: 615},
		{in: "9am", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClock_JSON(t *testing.T) {
	data, err := json.Marshal(Window{Start: 540, End: 600})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"09:00","end":"10:00"}`, string(data))

	var w Window
	require.NoError(t, json.Unmarshal([]byte(`{"start":"13:15","end":"24:00"}`), &w))
	assert.Equal(t, Clock(795), w.Start)
	assert.Equal(t, Clock(MinutesPerDay), w.End)

	assert.Error(t, json.Unmarshal([]byte(`{"start":540}`), &w))
}

func TestWindow_Overlaps(t *testing.T) {
	booked := Window{Start: 600, End: 660}

	tests := []struct {
		name   string
		w      Window
		buffer int
		want   bool
	}{
		{name: "touching before without buffer", w: Window{Start: 540, End: 600}, want: false},
		{name: "touching after without buffer", w: Window{Start: 660, End: 720}, want: false},
		{name: "inside", w: Window{Start: 610, End: 620}, want: true},
		{name: "covering", w: Window{Start: 500, End: 700}, want: true},
		{name: "touching before inside buffer", w: Window{Start: 540, End: 600}, buffer: 15, want: true},
		{name: "ends exactly at buffer edge", w: Window{Start: 525, End: 585}, buffer: 15, want: false},
		{name: "starts exactly at buffer edge", w: Window{Start: 675, End: 705}, buffer: 15, want: false},
		{name: "starts inside trailing buffer", w: Window{Start: 670, End: 700}, buffer: 15, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.w.Overlaps(booked, tt.buffer))
			assert.Equal(t, tt.want, booked.Overlaps(tt.w, tt.buffer), "rule must be symmetric")
		})
	}
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-17")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d.Weekday())
	assert.Equal(t, Date("2025-03-18"), d.AddDays(1))
	assert.True(t, d.Before("2025-03-18"))

	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	at := d.At(570, loc)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, loc, at.Location())

	_, err = ParseDate("17/03/2025")
	assert.Error(t, err)
}
