package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"masterbook/internal/bookings/service"
	apperrors "masterbook/pkg/errors"
	httputil "masterbook/pkg/http"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.SchedulingService
	log     *logger.Logger
}

func NewBookingHandler(service service.SchedulingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/providers/:provider_id/slots", h.Slots)
	router.GET("/api/v1/providers/:provider_id/next-slot", h.NextSlot)

	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.List)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.GET("/api/v1/bookings/id/:id/history", h.History)

	router.POST("/api/v1/bookings/id/:id/confirm", h.Confirm)
	router.POST("/api/v1/bookings/id/:id/reject", h.Reject)
	router.POST("/api/v1/bookings/id/:id/start", h.Start)
	router.POST("/api/v1/bookings/id/:id/complete", h.Complete)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/bookings/id/:id/reschedule", h.Reschedule)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	date, err := httputil.ExtractDate(r, "date")
	if err != nil {
		h.writeError(w, "Slots", err)
		return
	}
	duration, err := extractDuration(r)
	if err != nil {
		h.writeError(w, "Slots", err)
		return
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), ps.ByName("provider_id"), date, duration)
	if err != nil {
		h.writeError(w, "Slots", err)
		return
	}

	if err := httputil.WriteSuccess(w, slots); err != nil {
		h.log.Error("failed to write success response", "handler", "Slots", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) NextSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	from, err := httputil.ExtractDate(r, "from")
	if err != nil {
		h.writeError(w, "NextSlot", err)
		return
	}
	duration, err := extractDuration(r)
	if err != nil {
		h.writeError(w, "NextSlot", err)
		return
	}
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			h.writeError(w, "NextSlot", apperrors.InvalidInput("invalid days parameter: "+raw))
			return
		}
	}

	slot, err := h.service.NextAvailableSlot(r.Context(), ps.ByName("provider_id"), from, duration, days)
	if err != nil {
		h.writeError(w, "NextSlot", err)
		return
	}

	if err := httputil.WriteSuccess(w, slot); err != nil {
		h.log.Error("failed to write success response", "handler", "NextSlot", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var req model.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	booking, err := h.service.GetBooking(r.Context(), actor, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) History(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "History", err)
		return
	}

	entries, err := h.service.History(r.Context(), actor, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "History", err)
		return
	}

	if err := httputil.WriteSuccess(w, entries); err != nil {
		h.log.Error("failed to write success response", "handler", "History", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	q, err := extractQuery(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	bookings, total, err := h.service.ListBookings(r.Context(), actor, q)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, q.Limit, q.Offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Confirm", func(actor model.Actor, id string, _ model.TransitionRequest) (*model.Booking, error) {
		return h.service.ConfirmBooking(r.Context(), actor, id)
	})
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Reject", func(actor model.Actor, id string, req model.TransitionRequest) (*model.Booking, error) {
		return h.service.RejectBooking(r.Context(), actor, id, req.Reason)
	})
}

func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Start", func(actor model.Actor, id string, _ model.TransitionRequest) (*model.Booking, error) {
		return h.service.StartBooking(r.Context(), actor, id)
	})
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Complete", func(actor model.Actor, id string, _ model.TransitionRequest) (*model.Booking, error) {
		return h.service.CompleteBooking(r.Context(), actor, id)
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	h.transition(w, r, ps, "Cancel", func(actor model.Actor, id string, req model.TransitionRequest) (*model.Booking, error) {
		return h.service.CancelBooking(r.Context(), actor, id, req.Reason)
	})
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	var req model.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Reschedule", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.RescheduleBooking(r.Context(), actor, ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "Reschedule", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Reschedule", "operation", "WriteSuccess", "error", err)
	}
}

// transition handles the POST endpoints whose optional body only carries a reason.
func (h *BookingHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	ps httprouter.Params,
	name string,
	run func(actor model.Actor, id string, req model.TransitionRequest) (*model.Booking, error),
) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	var req model.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, name, apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := run(actor, ps.ByName("id"), req)
	if err != nil {
		h.writeError(w, name, err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", name, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}

func extractDuration(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("duration")
	if raw == "" {
		return 0, apperrors.InvalidInput("missing duration parameter")
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidInput("invalid duration parameter: " + raw)
	}
	return d, nil
}

func extractQuery(r *http.Request) (model.BookingQuery, error) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		return model.BookingQuery{}, err
	}
	from, err := httputil.ExtractOptionalDate(r, "from")
	if err != nil {
		return model.BookingQuery{}, err
	}
	to, err := httputil.ExtractOptionalDate(r, "to")
	if err != nil {
		return model.BookingQuery{}, err
	}

	query := r.URL.Query()
	q := model.BookingQuery{
		ProviderID: query.Get("provider_id"),
		ClientID:   query.Get("client_id"),
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	}
	if raw := query.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Statuses = append(q.Statuses, model.BookingStatus(s))
			}
		}
	}
	return q, nil
}
