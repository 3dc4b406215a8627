package domain

import "time"

// DeadLetterEntry is a terminally failed job, kept for inspection rather
// than reprocessing.
type DeadLetterEntry struct {
	ID             string    `json:"id" db:"id"`
	JobID          string    `json:"job_id" db:"job_id"`
	EntryID        string    `json:"entry_id" db:"entry_id"`
	OwnerID        string    `json:"owner_id" db:"owner_id"`
	Reason         string    `json:"reason" db:"reason"`
	Classification string    `json:"classification" db:"classification"`
	Attempts       int       `json:"attempts" db:"attempts"`
	LastError      string    `json:"last_error" db:"last_error"`
	FailedAt       time.Time `json:"failed_at" db:"failed_at"`
}

// DeadLetterStats aggregates the dead letter queue for operators.
type DeadLetterStats struct {
	Total            int            `json:"total"`
	ByClassification map[string]int `json:"by_classification"`
	ByReason         map[string]int `json:"by_reason"`
	Oldest           *time.Time     `json:"oldest,omitempty"`
	Newest           *time.Time     `json:"newest,omitempty"`
}

// FailureNotification surfaces a recurring-failure pattern worth alerting
// on, e.g. repeated validation errors from one owner.
type FailureNotification struct {
	OwnerID        string    `json:"owner_id"`
	Classification string    `json:"classification"`
	Count          int       `json:"count"`
	LastSeen       time.Time `json:"last_seen"`
	Message        string    `json:"message"`
}
