package session

import "time"

// newTimer returns a function reporting elapsed seconds since the call to
// newTimer, the conventional shape for feeding a prometheus.Histogram.Observe.
func newTimer() func() float64 {
	start := time.Now()
	return func() float64 {
		return time.Since(start).Seconds()
	}
}
