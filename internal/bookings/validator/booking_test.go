package validator

import (
	"errors"
	"io"
	"testing"

	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *BookingValidator {
	return NewBookingValidator(logger.New(logger.Config{Level: "error", Output: io.Discard}))
}

func validCreate() *model.CreateBookingRequest {
	return &model.CreateBookingRequest{
		ProviderID:  "p1",
		ClientID:    "c1",
		ServiceName: "Haircut",
		Date:        "2025-03-17",
		StartTime:   "09:00",
		EndTime:     "10:00",
		BasePrice:   model.MustMoney("30"),
		TotalPrice:  model.MustMoney("35.50"),
		Currency:    "EUR",
	}
}

func fields(t *testing.T, err error) []string {
	t.Helper()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %T", err)
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateCreate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name    string
		mutate  func(r *model.CreateBookingRequest)
		wantErr []string
	}{
		{name: "valid request", mutate: func(*model.CreateBookingRequest) {}},
		{name: "missing provider", mutate: func(r *model.CreateBookingRequest) { r.ProviderID = "" }, wantErr: []string{"ProviderID"}},
		{name: "bad date", mutate: func(r *model.CreateBookingRequest) { r.Date = "17/03/2025" }, wantErr: []string{"Date"}},
		{name: "bad start", mutate: func(r *model.CreateBookingRequest) { r.StartTime = "9am" }, wantErr: []string{"StartTime"}},
		{name: "hour out of range", mutate: func(r *model.CreateBookingRequest) { r.EndTime = "25:00" }, wantErr: []string{"EndTime"}},
		{name: "end before start", mutate: func(r *model.CreateBookingRequest) { r.EndTime = "08:30" }, wantErr: []string{"EndTime"}},
		{name: "zero length", mutate: func(r *model.CreateBookingRequest) { r.EndTime = "09:00" }, wantErr: []string{"EndTime"}},
		{name: "currency length", mutate: func(r *model.CreateBookingRequest) { r.Currency = "EURO" }, wantErr: []string{"Currency"}},
		{name: "negative price", mutate: func(r *model.CreateBookingRequest) { r.TotalPrice = model.MustMoney("-1") }, wantErr: []string{"TotalPrice"}},
		{name: "total below base", mutate: func(r *model.CreateBookingRequest) { r.TotalPrice = model.MustMoney("29.99") }, wantErr: []string{"TotalPrice"}},
		{name: "free booking", mutate: func(r *model.CreateBookingRequest) {
			r.BasePrice, r.TotalPrice = model.MustMoney("0"), model.MustMoney("0")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreate()
			tt.mutate(req)
			err := v.ValidateCreate(req)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, fields(t, err))
		})
	}
}

func TestValidateReschedule(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.ValidateReschedule(&model.RescheduleRequest{Date: "2025-03-18", StartTime: "14:00", EndTime: "24:00"}))

	err := v.ValidateReschedule(&model.RescheduleRequest{Date: "2025-03-18", StartTime: "14:00", EndTime: "13:00"})
	assert.Equal(t, []string{"EndTime"}, fields(t, err))

	err = v.ValidateReschedule(&model.RescheduleRequest{})
	assert.ElementsMatch(t, []string{"Date", "StartTime", "EndTime"}, fields(t, err))
}

func TestValidateActor(t *testing.T) {
	v := newTestValidator()

	assert.NoError(t, v.ValidateActor(model.Actor{ID: "c1", Role: model.PartyClient}))

	err := v.ValidateActor(model.Actor{ID: "c1", Role: "admin"})
	require.Error(t, err)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs[0].Message, "client, provider, system")
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{{Field: "Date", Message: "bad"}, {Field: "EndTime", Message: "worse"}}
	assert.Equal(t, "validation failed: 2 error(s): [Date: bad; EndTime: worse]", errs.Error())
	assert.Equal(t, "", ValidationErrors{}.Error())
}
