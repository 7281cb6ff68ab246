package handler

import (
	"net/http"
	"time"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

type Event struct {
	svc *core.EventService
}

func NewEvent(svc *core.EventService) *Event {
	return &Event{svc: svc}
}

// Submit applies one lifecycle event to the quota ledger. A 409 means the
// event arrived before its predecessors and should be retried later; 202
// covers both fresh application and an already-seen sequence number.
func (h *Event) Submit(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitEvent
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	occurredAt := time.Unix(req.OccurredAt, 0)
	if req.OccurredAt == 0 {
		occurredAt = time.Now()
	}

	ev := &model.LifecycleEvent{
		ResourceID: req.ResourceID,
		ProjectID:  req.ProjectID,
		Kind:       req.Kind,
		Backend:    req.Backend,
		Transition: req.Transition,
		Figures: model.Figures{
			VCPU:      req.VCPU,
			RAMMB:     req.RAMMB,
			StorageMB: req.StorageMB,
		},
		Sequence:   req.Sequence,
		OccurredAt: occurredAt,
	}

	duplicate, err := h.svc.ApplyEvent(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusAccepted, map[string]any{
		"resource_id": ev.ResourceID,
		"sequence":    ev.Sequence,
		"duplicate":   duplicate,
	})
}
