package timeseries

import (
	"fmt"
	"time"
)

// Timeline interval units.
const (
	IntervalHour  = "hour"
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
)

// ValidInterval reports whether interval names a known timeline unit.
func ValidInterval(interval string) bool {
	switch interval {
	case IntervalHour, IntervalDay, IntervalWeek, IntervalMonth:
		return true
	}
	return false
}

// IntervalWindows returns the ascending sequence of interval-aligned half-open
// windows covering [from, to). The first window starts at from truncated down
// to an interval boundary (UTC), so callers always get full calendar units.
func IntervalWindows(from, to int64, interval string) ([]Bucket, error) {
	if to <= from {
		return nil, fmt.Errorf("interval windows: empty range [%d, %d)", from, to)
	}

	start := time.Unix(from, 0).UTC()
	switch interval {
	case IntervalHour:
		start = start.Truncate(time.Hour)
	case IntervalDay:
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	case IntervalWeek:
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		// ISO weeks start on Monday.
		offset := (int(start.Weekday()) + 6) % 7
		start = start.AddDate(0, 0, -offset)
	case IntervalMonth:
		start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return nil, fmt.Errorf("interval windows: unknown interval %q", interval)
	}

	var windows []Bucket
	for cur := start; cur.Unix() < to; {
		var next time.Time
		switch interval {
		case IntervalHour:
			next = cur.Add(time.Hour)
		case IntervalDay:
			next = cur.AddDate(0, 0, 1)
		case IntervalWeek:
			next = cur.AddDate(0, 0, 7)
		case IntervalMonth:
			next = cur.AddDate(0, 1, 0)
		}
		windows = append(windows, Bucket{From: cur.Unix(), To: next.Unix()})
		cur = next
	}

	return windows, nil
}
