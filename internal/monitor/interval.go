package monitor

import "time"

const (
	// hysteresisMs is how far the sampling period must move before the update
	// interval is recomputed.
	hysteresisMs = 2

	minRefreshMs = 100
)

// UpdateInterval maps a device sampling period to the consumer refresh
// interval. Fast devices are matched 1:1, medium ones oversampled 2:1 and
// slow ones refreshed at most ten times a second.
func UpdateInterval(period time.Duration) time.Duration {
	p := period.Milliseconds()

	var u int64
	switch {
	case p <= 33:
		u = p
	case p <= 100:
		u = p / 2
	default:
		u = max(p/3, minRefreshMs)
	}

	return time.Duration(max(u, 1)) * time.Millisecond
}

// applyHysteresis reports whether next is close enough to last to be ignored.
func applyHysteresis(next, last int64) bool {
	return abs(next-last) <= hysteresisMs
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}

	return x
}
