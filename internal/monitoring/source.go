package monitoring

import (
	"context"
	"errors"

	"github.com/edvin/metering/internal/model"
)

// ErrBackendUnavailable means the monitoring store could not be reached.
// Depending on configuration, usage queries either degrade to zero-filled
// data or surface this error.
var ErrBackendUnavailable = errors.New("monitoring backend unavailable")

// Source supplies raw utilization samples for resources. Implementations
// normalize units before returning: storage and memory to MiB, cpu to a 0-100
// percentage. from/to are epoch seconds, half-open [from, to).
type Source interface {
	FetchSamples(ctx context.Context, resourceIDs []string, item string, from, to int64) ([]model.UsageSample, error)
}
