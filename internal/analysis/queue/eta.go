package queue

import (
	"sync"
	"time"
)

// etaEstimator keeps a sliding window of recent processing durations and
// predicts completion time from the moving average.
type etaEstimator struct {
	mu        sync.Mutex
	durations []time.Duration
	window    int
}

func newETAEstimator(window int) *etaEstimator {
	if window <= 0 {
		window = 20
	}
	return &etaEstimator{
		durations: make([]time.Duration, 0, window),
		window:    window,
	}
}

// Record adds a completed job's processing duration.
func (e *etaEstimator) Record(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.durations = append(e.durations, d)
	if len(e.durations) > e.window {
		e.durations = e.durations[1:]
	}
}

// Average returns the moving average, or the fallback default when no
// samples exist yet.
func (e *etaEstimator) Average() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.durations) == 0 {
		return defaultProcessingEstimate
	}
	var total time.Duration
	for _, d := range e.durations {
		total += d
	}
	return total / time.Duration(len(e.durations))
}

// Estimate predicts the wait for a job with the given number of jobs ahead
// of it (the job itself included in the estimate).
func (e *etaEstimator) Estimate(position int) time.Duration {
	return e.Average() * time.Duration(position+1)
}

const defaultProcessingEstimate = 5 * time.Second
