package handler

import (
	"encoding/json"
	"net/http"

	"masterbook/internal/calendars/service"
	apperrors "masterbook/pkg/errors"
	httputil "masterbook/pkg/http"
	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type CalendarHandler struct {
	service service.CalendarService
	log     *logger.Logger
}

func NewCalendarHandler(service service.CalendarService, log *logger.Logger) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		log:     log,
	}
}

func (h *CalendarHandler) RegisterRoutes(router *httprouter.Router) {
	router.PUT("/api/v1/calendars/:provider_id", h.Put)
	router.GET("/api/v1/calendars/:provider_id", h.Get)
	router.DELETE("/api/v1/calendars/:provider_id", h.Delete)
	router.POST("/api/v1/calendars/:provider_id/exceptions", h.AddException)
	router.DELETE("/api/v1/calendars/:provider_id/exceptions/:date", h.RemoveException)
}

func (h *CalendarHandler) Put(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "Put", err)
		return
	}

	var req model.CalendarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Put", apperrors.InvalidInput("Invalid request body"))
		return
	}

	cal, err := h.service.Put(r.Context(), actor, ps.ByName("provider_id"), &req)
	if err != nil {
		h.writeError(w, "Put", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "Put", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	cal, err := h.service.Get(r.Context(), actor, ps.ByName("provider_id"))
	if err != nil {
		h.writeError(w, "Get", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "Get", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	if err := h.service.Delete(r.Context(), actor, ps.ByName("provider_id")); err != nil {
		h.writeError(w, "Delete", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *CalendarHandler) AddException(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "AddException", err)
		return
	}

	var ex model.CalendarException
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		h.writeError(w, "AddException", apperrors.InvalidInput("Invalid request body"))
		return
	}

	cal, err := h.service.AddException(r.Context(), actor, ps.ByName("provider_id"), &ex)
	if err != nil {
		h.writeError(w, "AddException", err)
		return
	}

	if err := httputil.WriteCreated(w, cal); err != nil {
		h.log.Error("failed to write created response", "handler", "AddException", "operation", "WriteCreated", "error", err)
	}
}

func (h *CalendarHandler) RemoveException(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		h.writeError(w, "RemoveException", err)
		return
	}

	date, err := model.ParseDate(ps.ByName("date"))
	if err != nil {
		h.writeError(w, "RemoveException", apperrors.InvalidInput(err.Error()))
		return
	}

	cal, err := h.service.RemoveException(r.Context(), actor, ps.ByName("provider_id"), date)
	if err != nil {
		h.writeError(w, "RemoveException", err)
		return
	}

	if err := httputil.WriteSuccess(w, cal); err != nil {
		h.log.Error("failed to write success response", "handler", "RemoveException", "operation", "WriteSuccess", "error", err)
	}
}

func (h *CalendarHandler) writeError(w http.ResponseWriter, name string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", name, "operation", "WriteError", "error", writeErr)
	}
}
