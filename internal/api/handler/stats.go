package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

// Default statistics windows.
const (
	defaultUsageSpan    = time.Hour
	defaultTimelineSpan = 24 * time.Hour
	defaultCreationSpan = 30 * 24 * time.Hour
)

type Stats struct {
	svc    *core.StatsService
	ledger *core.LedgerService
}

func NewStats(svc *core.StatsService, ledger *core.LedgerService) *Stats {
	return &Stats{svc: svc, ledger: ledger}
}

// Usage returns bucketized utilization for every live resource under a scope.
func (h *Stats) Usage(w http.ResponseWriter, r *http.Request) {
	scopeType := chi.URLParam(r, "scopeType")
	scopeID := chi.URLParam(r, "scopeID")

	item := r.URL.Query().Get("item")
	if item == "" {
		item = model.ItemCPU
	}

	win, err := request.ParseWindow(r, defaultUsageSpan)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := h.svc.UsageStatistics(r.Context(), scopeType, scopeID, item, win.From, win.To, win.Buckets)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, buckets)
}

// Quotas returns current limit and usage per resource type, for one scope
// instance or summed over a whole scope type.
func (h *Stats) Quotas(w http.ResponseWriter, r *http.Request) {
	scopeType := r.URL.Query().Get("scope_type")
	if scopeType == "" {
		scopeType = model.ScopeCustomer
	}
	scopeID := r.URL.Query().Get("scope_id")

	stats, err := h.svc.QuotaStatistics(r.Context(), scopeType, scopeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, stats)
}

// QuotaTimeline returns quota history bucketed by calendar interval.
func (h *Stats) QuotaTimeline(w http.ResponseWriter, r *http.Request) {
	scopeType := r.URL.Query().Get("scope_type")
	if scopeType == "" {
		scopeType = model.ScopeCustomer
	}
	scopeID := r.URL.Query().Get("scope_id")
	resourceType := r.URL.Query().Get("resource_type")

	win, err := request.ParseWindow(r, defaultTimelineSpan)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	interval, err := request.ParseInterval(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.svc.QuotaTimeline(r.Context(), scopeType, scopeID, resourceType, win.From, win.To, interval)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, points)
}

// CreationTime returns counts of entities created per bucket.
func (h *Stats) CreationTime(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("type")
	if entityType == "" {
		entityType = model.ScopeCustomer
	}

	win, err := request.ParseWindow(r, defaultCreationSpan)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := h.svc.CreationTimeStatistics(r.Context(), entityType, win.From, win.To, win.Buckets)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, buckets)
}

// Alerts returns alert counts by severity for the given filters.
func (h *Stats) Alerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.AlertFilter{
		ScopeType:  q.Get("scope_type"),
		ScopeID:    q.Get("scope_id"),
		ResourceID: q.Get("resource_id"),
		AlertType:  q.Get("alert_type"),
		State:      q.Get("state"),
	}
	if ack := q.Get("acknowledged"); ack != "" {
		v := ack == "true"
		filter.Acknowledged = &v
	}

	win, err := request.ParseWindow(r, defaultCreationSpan)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.Get("from") != "" {
		filter.From = win.From
	}
	if q.Get("to") != "" {
		filter.To = win.To
	}

	counts, err := h.svc.AlertStatistics(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, counts)
}

// Customers returns the per-customer overview.
func (h *Stats) Customers(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Summary(r.Context(), h.ledger)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, summaries)
}

// Resources returns aggregate figures for one backend's live resources.
func (h *Stats) Resources(w http.ResponseWriter, r *http.Request) {
	backend := r.URL.Query().Get("backend")

	stats, err := h.svc.ResourceStatistics(r.Context(), backend)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, stats)
}
