package request

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/edvin/metering/internal/timeseries"
)

// DefaultBuckets is the datapoint count used when n_buckets is absent.
const DefaultBuckets = 6

// Window is a parsed half-open statistics range with its bucket count.
type Window struct {
	From    int64
	To      int64
	Buckets int
}

// ParseWindow reads from, to and n_buckets query parameters, falling back to
// the last defaultSpan ending now and DefaultBuckets datapoints.
func ParseWindow(r *http.Request, defaultSpan time.Duration) (Window, error) {
	now := time.Now().Unix()
	w := Window{
		From:    now - int64(defaultSpan.Seconds()),
		To:      now,
		Buckets: DefaultBuckets,
	}

	var err error
	if w.From, err = int64Param(r, "from", w.From); err != nil {
		return w, err
	}
	if w.To, err = int64Param(r, "to", w.To); err != nil {
		return w, err
	}
	if buckets := r.URL.Query().Get("n_buckets"); buckets != "" {
		n, err := strconv.Atoi(buckets)
		if err != nil {
			return w, fmt.Errorf("invalid n_buckets %q", buckets)
		}
		w.Buckets = n
	}

	if w.To <= w.From {
		return w, fmt.Errorf("empty range: from %d is not before to %d", w.From, w.To)
	}
	if w.Buckets <= 0 {
		return w, fmt.Errorf("n_buckets must be positive, got %d", w.Buckets)
	}
	return w, nil
}

// ParseInterval reads the interval query parameter, defaulting to day.
func ParseInterval(r *http.Request) (string, error) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		return timeseries.IntervalDay, nil
	}
	if !timeseries.ValidInterval(interval) {
		return "", fmt.Errorf("unknown interval %q", interval)
	}
	return interval, nil
}

func int64Param(r *http.Request, name string, fallback int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}
