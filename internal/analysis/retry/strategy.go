// Package retry decides whether, when, and at what priority a failed
// analysis job is re-attempted.
package retry

import (
	"fmt"
	"math"
	"time"

	"github.com/tcynic/resonant-sub007/internal/analysis/classify"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`

	// EscalateAfterRetries raises priority one step once a job has failed
	// this many times; EscalateAfterWait does the same once the job has
	// been waiting this long since it was first queued.
	EscalateAfterRetries int           `yaml:"escalate_after_retries"`
	EscalateAfterWait    time.Duration `yaml:"escalate_after_wait"`
	UrgentAfterRetries   int           `yaml:"urgent_after_retries"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries:           3,
	BaseDelay:            1 * time.Second,
	MaxDelay:             60 * time.Second,
	EscalateAfterRetries: 1,
	EscalateAfterWait:    2 * time.Minute,
	UrgentAfterRetries:   3,
}

// Strategy is the retry strategy engine.
type Strategy struct {
	cfg Config
}

// New creates a strategy engine, filling zero config fields from defaults.
func New(cfg Config) *Strategy {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.EscalateAfterRetries == 0 {
		cfg.EscalateAfterRetries = DefaultConfig.EscalateAfterRetries
	}
	if cfg.EscalateAfterWait == 0 {
		cfg.EscalateAfterWait = DefaultConfig.EscalateAfterWait
	}
	if cfg.UrgentAfterRetries == 0 {
		cfg.UrgentAfterRetries = DefaultConfig.UrgentAfterRetries
	}
	return &Strategy{cfg: cfg}
}

// NewContext builds the per-failure snapshot consumed by Decide.
func NewContext(job *domain.AnalysisJob, err error) domain.RetryContext {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return domain.RetryContext{
		JobID:      job.ID,
		EntryID:    job.EntryID,
		Priority:   job.Priority,
		RetryCount: job.Attempts,
		Error:      msg,
		QueuedAt:   job.QueuedAt,
		CreatedAt:  job.CreatedAt,
	}
}

// Decide evaluates a failure and returns the retry decision.
func (s *Strategy) Decide(rc domain.RetryContext) domain.RetryDecision {
	class := classify.Classify(rc.Error)
	recoverable := classify.IsRecoverable(rc.Error)

	return domain.RetryDecision{
		ShouldRetry:         recoverable && rc.RetryCount < s.cfg.MaxRetries,
		NewPriority:         s.escalate(rc),
		BackoffDelay:        s.backoff(rc.RetryCount),
		MaxRetries:          s.cfg.MaxRetries,
		ErrorClassification: string(class),
	}
}

// backoff computes base * 2^retryCount, capped at MaxDelay.
func (s *Strategy) backoff(retryCount int) time.Duration {
	delay := float64(s.cfg.BaseDelay) * math.Pow(2, float64(retryCount))
	if delay > float64(s.cfg.MaxDelay) {
		delay = float64(s.cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// escalate raises priority as retries accumulate or wait time grows, so a
// repeatedly failing job cannot starve behind fresh work. Priority never
// goes down.
func (s *Strategy) escalate(rc domain.RetryContext) domain.Priority {
	p := rc.Priority
	if rc.RetryCount >= s.cfg.UrgentAfterRetries {
		p = maxPriority(p, domain.PriorityUrgent)
	} else if rc.RetryCount >= s.cfg.EscalateAfterRetries {
		p = maxPriority(p, p.Escalate())
	}
	if !rc.QueuedAt.IsZero() && time.Since(rc.QueuedAt) >= s.cfg.EscalateAfterWait {
		p = maxPriority(p, p.Escalate())
	}
	return p
}

func maxPriority(a, b domain.Priority) domain.Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Recommendation renders a decision for logs and operator UI.
func Recommendation(d domain.RetryDecision) string {
	if d.ShouldRetry {
		return fmt.Sprintf("Retry with %s priority after %dms", d.NewPriority, d.BackoffDelay.Milliseconds())
	}
	var reason string
	switch classify.Class(d.ErrorClassification) {
	case classify.ClassTimeout, classify.ClassNetwork, classify.ClassRateLimit, classify.ClassServiceError:
		reason = fmt.Sprintf("retry budget exhausted after %d attempts", d.MaxRetries)
	case classify.ClassUnknown:
		reason = "unclassified error"
	default:
		reason = fmt.Sprintf("%s error is not retryable", d.ErrorClassification)
	}
	return fmt.Sprintf("No retry: %s", reason)
}

// ValidateConfig self-checks internal consistency, for configuration tests
// and startup validation.
func (s *Strategy) ValidateConfig() (bool, []string) {
	var issues []string
	if s.cfg.MaxRetries < 0 {
		issues = append(issues, "max_retries must not be negative")
	}
	if s.cfg.BaseDelay <= 0 {
		issues = append(issues, "base_delay must be positive")
	}
	if s.cfg.MaxDelay < s.cfg.BaseDelay {
		issues = append(issues, "max_delay must be >= base_delay")
	}
	if s.cfg.EscalateAfterRetries > s.cfg.MaxRetries {
		issues = append(issues, "escalate_after_retries exceeds max_retries and can never fire")
	}
	if s.cfg.UrgentAfterRetries < s.cfg.EscalateAfterRetries {
		issues = append(issues, "urgent_after_retries must be >= escalate_after_retries")
	}
	if s.cfg.EscalateAfterWait <= 0 {
		issues = append(issues, "escalate_after_wait must be positive")
	}
	return len(issues) == 0, issues
}
