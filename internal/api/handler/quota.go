package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

type Quota struct {
	svc *core.LedgerService
}

func NewQuota(svc *core.LedgerService) *Quota {
	return &Quota{svc: svc}
}

func scopeParams(r *http.Request) (string, string, bool) {
	scopeType := chi.URLParam(r, "scopeType")
	scopeID := chi.URLParam(r, "scopeID")
	return scopeType, scopeID, model.ValidScopeType(scopeType) && scopeID != ""
}

func (h *Quota) ListByScope(w http.ResponseWriter, r *http.Request) {
	scopeType, scopeID, ok := scopeParams(r)
	if !ok {
		response.WriteError(w, http.StatusBadRequest, "invalid scope")
		return
	}

	quotas, err := h.svc.ListByScope(r.Context(), scopeType, scopeID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, quotas)
}

func (h *Quota) SetLimit(w http.ResponseWriter, r *http.Request) {
	scopeType, scopeID, ok := scopeParams(r)
	if !ok {
		response.WriteError(w, http.StatusBadRequest, "invalid scope")
		return
	}
	resourceType := chi.URLParam(r, "resourceType")
	if !model.ValidResourceType(resourceType) {
		response.WriteError(w, http.StatusBadRequest, "invalid resource type")
		return
	}

	var req request.SetQuotaLimit
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetLimit(r.Context(), scopeType, scopeID, resourceType, req.Limit); err != nil {
		writeServiceError(w, err)
		return
	}

	quota, err := h.svc.Get(r.Context(), scopeType, scopeID, resourceType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, quota)
}

// Check answers whether the given figures would fit within the scope's
// limits. The answer is advisory; concurrent events may change it before a
// backend acts on it.
func (h *Quota) Check(w http.ResponseWriter, r *http.Request) {
	scopeType, scopeID, ok := scopeParams(r)
	if !ok {
		response.WriteError(w, http.StatusBadRequest, "invalid scope")
		return
	}

	var req request.CheckQuota
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	violations, err := h.svc.CheckFigures(r.Context(),
		[]model.ScopeRef{{Type: scopeType, ID: scopeID}},
		model.Figures{VCPU: req.VCPU, RAMMB: req.RAMMB, StorageMB: req.StorageMB},
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"fits":       len(violations) == 0,
		"violations": violations,
	})
}
