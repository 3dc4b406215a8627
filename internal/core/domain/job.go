package domain

import "time"

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusProcessing   JobStatus = "processing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusDeadLettered JobStatus = "dead_lettered"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusDeadLettered
}

// Active reports whether the status counts toward the one-active-job-per-entry
// uniqueness rule.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

// Priority orders jobs within the queue. Higher Rank dequeues first.
type Priority string

const (
	// PriorityLow appears only in upgrade recommendations ("not worth
	// scheduling ahead of anything"); jobs are enqueued at normal or above.
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the numeric ordering of a priority (urgent > high > normal).
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Escalate returns the next priority up. Urgent stays urgent.
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityNormal
	case PriorityNormal:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}

// AnalysisJob represents one unit of analysis work for a journal entry.
//
// At most one job per EntryID may be in an active status at a time. All
// status changes go through the job repository's compare-and-set transition.
type AnalysisJob struct {
	ID                  string     `json:"id" db:"id"`
	EntryID             string     `json:"entry_id" db:"entry_id"`
	OwnerID             string     `json:"owner_id" db:"owner_id"`
	Status              JobStatus  `json:"status" db:"status"`
	Priority            Priority   `json:"priority" db:"priority"`
	Attempts            int        `json:"attempts" db:"attempts"`
	QueuedAt            time.Time  `json:"queued_at" db:"queued_at"`
	NotBefore           time.Time  `json:"not_before" db:"not_before"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty" db:"processing_started_at"`
	LastError           string     `json:"last_error,omitempty" db:"last_error"`
	LastErrorClass      string     `json:"last_error_class,omitempty" db:"last_error_class"`
	ResultRef           string     `json:"result_ref,omitempty" db:"result_ref"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// JobStatusReport is the answer to a status query.
type JobStatusReport struct {
	Status        JobStatus     `json:"status"`
	QueuePosition int           `json:"queue_position"`
	ETA           time.Duration `json:"eta"`
	Error         string        `json:"error,omitempty"`
}
