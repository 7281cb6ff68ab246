package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/monitoring"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"out of order", fmt.Errorf("seq 3 after 1: %w", core.ErrOutOfOrderEvent), http.StatusConflict},
		{"quota record missing", core.ErrQuotaRecordMissing, http.StatusConflict},
		{"monitoring down", monitoring.ErrBackendUnavailable, http.StatusBadGateway},
		{"not found", pgx.ErrNoRows, http.StatusNotFound},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestSubmitEventRejectsMalformedBody(t *testing.T) {
	h := NewEvent(nil)

	cases := []string{
		`{`,
		`{"project_id": "p1", "transition": "active", "sequence": 2}`,
		`{"resource_id": "r1", "project_id": "p1", "transition": "warp", "sequence": 2}`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(body))
		h.Submit(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}
