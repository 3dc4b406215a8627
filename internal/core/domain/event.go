package domain

import "time"

// EventType identifies a notification event on the outbound stream.
type EventType string

const (
	EventJobDeadLettered    EventType = "job_dead_lettered"
	EventBreakerOpened      EventType = "breaker_opened"
	EventBreakerClosed      EventType = "breaker_closed"
	EventFallbackServed     EventType = "fallback_served"
	EventUpgradeRecommended EventType = "upgrade_recommended"
)

// Event is a structured notification for the alerting/UI layers. The
// consumers are out of scope; this is the wire shape only.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	EntryID   string            `json:"entry_id,omitempty"`
	OwnerID   string            `json:"owner_id,omitempty"`
	Service   string            `json:"service,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
