package timeseries

import (
	"fmt"

	"github.com/edvin/metering/internal/model"
)

// Bucket is one half-open [From, To) window of a timeline. Timestamps are
// epoch seconds.
type Bucket struct {
	From  int64   `json:"from"`
	To    int64   `json:"to"`
	Value float64 `json:"value"`
}

// Bucketize divides [from, to) into n equal-width, ascending, non-overlapping
// windows and assigns each window the mean of the samples that fall into it.
// Windows without samples get an explicit zero value, including windows before
// the earliest available sample, so the result always has exactly n entries.
func Bucketize(samples []model.UsageSample, from, to int64, n int) ([]Bucket, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bucketize: n_buckets must be positive, got %d", n)
	}
	if to <= from {
		return nil, fmt.Errorf("bucketize: empty range [%d, %d)", from, to)
	}

	buckets := make([]Bucket, n)
	sums := make([]float64, n)
	counts := make([]int64, n)

	span := to - from
	for i := 0; i < n; i++ {
		// Integer edges derived from the full span so the last bucket ends
		// exactly at to.
		buckets[i].From = from + span*int64(i)/int64(n)
		buckets[i].To = from + span*int64(i+1)/int64(n)
	}

	for _, s := range samples {
		if s.Timestamp < from || s.Timestamp >= to {
			continue
		}
		idx := int((s.Timestamp - from) * int64(n) / span)
		if idx >= n {
			idx = n - 1
		}
		// Integer edge rounding can place a sample one bucket behind its
		// half-open window.
		for idx < n-1 && s.Timestamp >= buckets[idx].To {
			idx++
		}
		sums[idx] += s.Value
		counts[idx]++
	}

	for i := 0; i < n; i++ {
		if counts[i] > 0 {
			buckets[i].Value = sums[i] / float64(counts[i])
		}
	}

	return buckets, nil
}

// SumBuckets adds the values of b into acc position-wise. Both slices must
// have been produced by Bucketize over the same range and bucket count.
func SumBuckets(acc, b []Bucket) []Bucket {
	if acc == nil {
		out := make([]Bucket, len(b))
		copy(out, b)
		return out
	}
	for i := range acc {
		acc[i].Value += b[i].Value
	}
	return acc
}
