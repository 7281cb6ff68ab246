package handler

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/monitoring"
)

// writeServiceError maps service errors to HTTP statuses. Out-of-order events
// and missing quota records are conflicts the reporter retries; validation
// failures are permanent rejections.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidationError(err):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrOutOfOrderEvent):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrQuotaRecordMissing):
		response.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, monitoring.ErrBackendUnavailable):
		response.WriteError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		response.WriteError(w, http.StatusNotFound, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
