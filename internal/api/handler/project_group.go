package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
)

type ProjectGroup struct {
	svc *core.ProjectGroupService
}

func NewProjectGroup(svc *core.ProjectGroupService) *ProjectGroup {
	return &ProjectGroup{svc: svc}
}

func (h *ProjectGroup) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := request.RequireID(chi.URLParam(r, "customerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	groups, err := h.svc.ListByCustomer(r.Context(), customerID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, groups)
}

func (h *ProjectGroup) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProjectGroup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	group := &model.ProjectGroup{
		ID:         platform.NewName("pg"),
		Name:       req.Name,
		CustomerID: req.CustomerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.svc.Create(r.Context(), group); err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, group)
}

func (h *ProjectGroup) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, group)
}

func (h *ProjectGroup) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddProject puts a project into the group. Live usage of the project is
// folded into the group quotas in the same transaction.
func (h *ProjectGroup) AddProject(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.GroupMembership
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.AddProject(r.Context(), id, req.ProjectID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectGroup) RemoveProject(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.GroupMembership
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.RemoveProject(r.Context(), id, req.ProjectID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
