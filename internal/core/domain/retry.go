package domain

import "time"

// RetryContext is the snapshot handed to the retry strategy engine when a
// job fails. Built per failure evaluation, never persisted.
type RetryContext struct {
	JobID      string
	EntryID    string
	Priority   Priority
	RetryCount int
	Error      string
	QueuedAt   time.Time
	CreatedAt  time.Time
}

// RetryDecision is the strategy engine's verdict for one failure.
type RetryDecision struct {
	ShouldRetry         bool
	NewPriority         Priority
	BackoffDelay        time.Duration
	MaxRetries          int
	ErrorClassification string
}
