package domain

import "time"

// BreakerStatus is the state of a circuit breaker.
type BreakerStatus string

const (
	BreakerClosed   BreakerStatus = "closed"
	BreakerOpen     BreakerStatus = "open"
	BreakerHalfOpen BreakerStatus = "half_open"
)

// BreakerState is the shared circuit breaker record for one external
// service. It lives in the durable store and is mutated only through
// compare-and-swap, so concurrent workers and restarts see one truth.
type BreakerState struct {
	Service          string        `json:"service" db:"service"`
	Status           BreakerStatus `json:"status" db:"status"`
	FailureCount     int           `json:"failure_count" db:"failure_count"`
	SuccessCount     int           `json:"success_count" db:"success_count"`
	TrialCount       int           `json:"trial_count" db:"trial_count"` // half_open trials in flight
	LastFailureAt    *time.Time    `json:"last_failure_at,omitempty" db:"last_failure_at"`
	LastSuccessAt    *time.Time    `json:"last_success_at,omitempty" db:"last_success_at"`
	NextRetryAt      *time.Time    `json:"next_retry_at,omitempty" db:"next_retry_at"`
	Timeout          time.Duration `json:"timeout" db:"timeout"`
	FailureThreshold int           `json:"failure_threshold" db:"failure_threshold"`
	Version          int64         `json:"version" db:"version"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}
