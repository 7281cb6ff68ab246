package request

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/metering/internal/timeseries"
)

func TestParseWindowDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/stats", nil)

	w, err := ParseWindow(r, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, DefaultBuckets, w.Buckets)
	assert.Equal(t, int64(3600), w.To-w.From)
	assert.InDelta(t, time.Now().Unix(), w.To, 2)
}

func TestParseWindowExplicit(t *testing.T) {
	r := httptest.NewRequest("GET", "/stats?from=100&to=700&n_buckets=12", nil)

	w, err := ParseWindow(r, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, Window{From: 100, To: 700, Buckets: 12}, w)
}

func TestParseWindowRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		query string
	}{
		{"garbage from", "from=abc"},
		{"garbage buckets", "from=0&to=600&n_buckets=six"},
		{"empty range", "from=600&to=600"},
		{"inverted range", "from=700&to=100"},
		{"zero buckets", "from=0&to=600&n_buckets=0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/stats?"+tc.query, nil)
			_, err := ParseWindow(r, time.Hour)
			assert.Error(t, err)
		})
	}
}

func TestParseInterval(t *testing.T) {
	r := httptest.NewRequest("GET", "/stats", nil)
	interval, err := ParseInterval(r)
	require.NoError(t, err)
	assert.Equal(t, timeseries.IntervalDay, interval)

	r = httptest.NewRequest("GET", "/stats?interval=month", nil)
	interval, err = ParseInterval(r)
	require.NoError(t, err)
	assert.Equal(t, timeseries.IntervalMonth, interval)

	r = httptest.NewRequest("GET", "/stats?interval=fortnight", nil)
	_, err = ParseInterval(r)
	assert.Error(t, err)
}

func TestDecodeSubmitEvent(t *testing.T) {
	body := `{
		"resource_id": "r1", "project_id": "p1", "transition": "provisioning",
		"vcpu": 2, "ram_mb": 2048, "storage_mb": 20, "sequence": 1
	}`
	r := httptest.NewRequest("POST", "/events", strings.NewReader(body))

	var req SubmitEvent
	require.NoError(t, Decode(r, &req))
	assert.Equal(t, "r1", req.ResourceID)
	assert.Equal(t, int64(2), req.VCPU)
}

func TestDecodeSubmitEventRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing resource id", `{"project_id": "p1", "transition": "active", "sequence": 2}`},
		{"unknown transition", `{"resource_id": "r1", "project_id": "p1", "transition": "rebooting", "sequence": 2}`},
		{"negative vcpu", `{"resource_id": "r1", "project_id": "p1", "transition": "active", "vcpu": -1, "sequence": 2}`},
		{"zero sequence", `{"resource_id": "r1", "project_id": "p1", "transition": "active", "sequence": 0}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/events", strings.NewReader(tc.body))
			var req SubmitEvent
			assert.Error(t, Decode(r, &req))
		})
	}
}

func TestDecodeCreateCustomerSlug(t *testing.T) {
	for body, wantErr := range map[string]bool{
		`{"name": "acme"}`:        false,
		`{"name": "acme-corp_2"}`: false,
		`{"name": "Acme"}`:        true,
		`{"name": "2fast"}`:       true,
		`{"name": ""}`:            true,
		`{"name": "has spaces"}`:  true,
	} {
		r := httptest.NewRequest("POST", "/customers", strings.NewReader(body))
		var req CreateCustomer
		err := Decode(r, &req)
		if wantErr {
			assert.Error(t, err, "body %s", body)
		} else {
			assert.NoError(t, err, "body %s", body)
		}
	}
}

func TestDecodeOpenAlert(t *testing.T) {
	r := httptest.NewRequest("POST", "/alerts", strings.NewReader(
		`{"scope_type": "project", "scope_id": "p1", "alert_type": "cpu_high", "severity": "warning"}`))
	var req OpenAlert
	require.NoError(t, Decode(r, &req))
	assert.Nil(t, req.ResourceID)

	r = httptest.NewRequest("POST", "/alerts", strings.NewReader(
		`{"scope_type": "project", "scope_id": "p1", "alert_type": "cpu_high", "severity": "panic"}`))
	assert.Error(t, Decode(r, &req))
}

func TestDecodeSetQuotaLimit(t *testing.T) {
	r := httptest.NewRequest("PUT", "/quotas", strings.NewReader(`{"limit": 10}`))
	var req SetQuotaLimit
	require.NoError(t, Decode(r, &req))
	require.NotNil(t, req.Limit)
	assert.Equal(t, int64(10), *req.Limit)

	r = httptest.NewRequest("PUT", "/quotas", strings.NewReader(`{"limit": null}`))
	req = SetQuotaLimit{}
	require.NoError(t, Decode(r, &req))
	assert.Nil(t, req.Limit)

	r = httptest.NewRequest("PUT", "/quotas", strings.NewReader(`{"limit": -5}`))
	req = SetQuotaLimit{}
	assert.Error(t, Decode(r, &req))
}
