package timeseries

const mib = 1024 * 1024

// BytesToMiB converts a raw byte value to MiB.
func BytesToMiB(v float64) float64 {
	return v / mib
}

// ClampPercent bounds a cpu utilization value to the 0-100 range.
func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
