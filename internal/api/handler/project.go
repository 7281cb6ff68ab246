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

type Project struct {
	svc       *core.ProjectService
	resources *core.ResourceService
}

func NewProject(svc *core.ProjectService, resources *core.ResourceService) *Project {
	return &Project{svc: svc, resources: resources}
}

func (h *Project) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID, err := request.RequireID(chi.URLParam(r, "customerID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	projects, err := h.svc.ListByCustomer(r.Context(), customerID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, projects)
}

func (h *Project) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProject
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	project := &model.Project{
		ID:         platform.NewName("proj"),
		Name:       req.Name,
		CustomerID: req.CustomerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.svc.Create(r.Context(), project); err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, project)
}

func (h *Project) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, project)
}

func (h *Project) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *Project) ListResources(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	resources, err := h.resources.ListByProject(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, resources)
}
