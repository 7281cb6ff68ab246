package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

type Alert struct {
	svc *core.AlertService
}

func NewAlert(svc *core.AlertService) *Alert {
	return &Alert{svc: svc}
}

// Open records an alert. Reopening an already-open alert of the same type and
// target returns the existing one with 200 instead of 201.
func (h *Alert) Open(w http.ResponseWriter, r *http.Request) {
	var req request.OpenAlert
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert := &model.Alert{
		ScopeType:  req.ScopeType,
		ScopeID:    req.ScopeID,
		ResourceID: req.ResourceID,
		AlertType:  req.AlertType,
		Severity:   req.Severity,
	}
	created, err := h.svc.Open(r.Context(), alert)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.WriteJSON(w, status, alert)
}

func (h *Alert) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Acknowledge(r.Context(), id); err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Alert) Close(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Close(r.Context(), id); err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
