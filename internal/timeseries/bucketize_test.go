package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/metering/internal/model"
)

func sample(ts int64, value float64) model.UsageSample {
	return model.UsageSample{ResourceID: "r1", Item: model.ItemCPU, Timestamp: ts, Value: value}
}

func TestBucketizeMeansPerWindow(t *testing.T) {
	samples := []model.UsageSample{
		sample(0, 10),
		sample(50, 30),
		sample(150, 40),
		sample(550, 8),
	}

	buckets, err := Bucketize(samples, 0, 600, 6)
	require.NoError(t, err)
	require.Len(t, buckets, 6)

	assert.Equal(t, Bucket{From: 0, To: 100, Value: 20}, buckets[0])
	assert.Equal(t, Bucket{From: 100, To: 200, Value: 40}, buckets[1])
	assert.Equal(t, Bucket{From: 500, To: 600, Value: 8}, buckets[5])
	// Windows without samples carry an explicit zero.
	assert.Equal(t, Bucket{From: 200, To: 300, Value: 0}, buckets[2])
}

func TestBucketizeIgnoresSamplesOutsideRange(t *testing.T) {
	samples := []model.UsageSample{
		sample(-1, 100),
		sample(600, 100),
		sample(599, 5),
	}

	buckets, err := Bucketize(samples, 0, 600, 6)
	require.NoError(t, err)
	assert.Equal(t, 5.0, buckets[5].Value)
	for i := 0; i < 5; i++ {
		assert.Zero(t, buckets[i].Value)
	}
}

func TestBucketizeUnevenSpan(t *testing.T) {
	// 100 seconds over 3 buckets: edges must stay ascending, contiguous and
	// end exactly at to.
	buckets, err := Bucketize(nil, 0, 100, 3)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, int64(0), buckets[0].From)
	for i := 1; i < 3; i++ {
		assert.Equal(t, buckets[i-1].To, buckets[i].From)
	}
	assert.Equal(t, int64(100), buckets[2].To)
}

func TestBucketizeEdgeSampleOnUnevenSpan(t *testing.T) {
	// Edges for [0, 10) over 3 buckets round down to 0, 3, 6, 10. A sample
	// at an exact edge belongs to the window it opens, never the one before.
	samples := []model.UsageSample{
		sample(3, 30),
		sample(6, 60),
		sample(9, 90),
	}

	buckets, err := Bucketize(samples, 0, 10, 3)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, Bucket{From: 0, To: 3, Value: 0}, buckets[0])
	assert.Equal(t, Bucket{From: 3, To: 6, Value: 30}, buckets[1])
	assert.Equal(t, Bucket{From: 6, To: 10, Value: 75}, buckets[2])
}

func TestBucketizeRejectsBadInput(t *testing.T) {
	_, err := Bucketize(nil, 0, 600, 0)
	assert.Error(t, err)

	_, err = Bucketize(nil, 600, 600, 6)
	assert.Error(t, err)
}

func TestSumBuckets(t *testing.T) {
	a, err := Bucketize([]model.UsageSample{sample(10, 4)}, 0, 100, 2)
	require.NoError(t, err)
	b, err := Bucketize([]model.UsageSample{sample(10, 6), sample(60, 2)}, 0, 100, 2)
	require.NoError(t, err)

	total := SumBuckets(nil, a)
	total = SumBuckets(total, b)

	assert.Equal(t, 10.0, total[0].Value)
	assert.Equal(t, 2.0, total[1].Value)
	// The inputs are not mutated.
	assert.Equal(t, 4.0, a[0].Value)
}

func TestIntervalWindowsDay(t *testing.T) {
	// 2024-01-01T12:00Z to 2024-01-03T06:00Z truncates to three days.
	from := int64(1704067200 + 12*3600)
	to := int64(1704067200 + 2*86400 + 6*3600)

	windows, err := IntervalWindows(from, to, IntervalDay)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, int64(1704067200), windows[0].From)
	assert.Equal(t, int64(1704067200+86400), windows[0].To)
	assert.Equal(t, int64(1704067200+2*86400), windows[2].From)
}

func TestIntervalWindowsWeekStartsMonday(t *testing.T) {
	// 2024-01-03 is a Wednesday; the window must open on Monday 2024-01-01.
	from := int64(1704240000)
	windows, err := IntervalWindows(from, from+1, IntervalWeek)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, int64(1704067200), windows[0].From)
}

func TestIntervalWindowsRejectsEmptyRange(t *testing.T) {
	_, err := IntervalWindows(100, 100, IntervalHour)
	assert.Error(t, err)
}

func TestNormalization(t *testing.T) {
	assert.Equal(t, 1.0, BytesToMiB(1024*1024))
	assert.Equal(t, 0.0, ClampPercent(-4))
	assert.Equal(t, 100.0, ClampPercent(250))
	assert.Equal(t, 37.5, ClampPercent(37.5))
}
