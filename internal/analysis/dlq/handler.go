// Package dlq persists terminally failed jobs for inspection and surfaces
// recurring failure patterns to the alerting layer.
package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tcynic/resonant-sub007/internal/analysis/metrics"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// Publisher emits structured events for the notification contract. May be
// nil when no event sink is configured.
type Publisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Config tunes pattern detection.
type Config struct {
	// PatternWindow is how far back recurring failures are correlated.
	PatternWindow time.Duration `yaml:"pattern_window"`
	// PatternThreshold is how many same-class failures from one owner
	// within the window warrant a notification.
	PatternThreshold int `yaml:"pattern_threshold"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	PatternWindow:    24 * time.Hour,
	PatternThreshold: 3,
}

// Handler is the dead letter queue handler.
type Handler struct {
	cfg    Config
	repo   storage.DeadLetterRepository
	jobs   storage.JobRepository
	events Publisher
	log    *slog.Logger
	now    func() time.Time
}

// New creates a handler.
func New(cfg Config, repo storage.DeadLetterRepository, jobs storage.JobRepository, events Publisher, log *slog.Logger) *Handler {
	if cfg.PatternWindow == 0 {
		cfg.PatternWindow = DefaultConfig.PatternWindow
	}
	if cfg.PatternThreshold == 0 {
		cfg.PatternThreshold = DefaultConfig.PatternThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg:    cfg,
		repo:   repo,
		jobs:   jobs,
		events: events,
		log:    log.With("component", "dlq"),
		now:    time.Now,
	}
}

// Move persists a terminally failed job in the dead letter queue and
// finalizes its status. The job must already be in failed.
func (h *Handler) Move(ctx context.Context, job *domain.AnalysisJob, reason string) error {
	entry := &domain.DeadLetterEntry{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		EntryID:        job.EntryID,
		OwnerID:        job.OwnerID,
		Reason:         reason,
		Classification: job.LastErrorClass,
		Attempts:       job.Attempts,
		LastError:      job.LastError,
		FailedAt:       h.now(),
	}
	if err := h.repo.Add(ctx, entry); err != nil {
		return fmt.Errorf("persist dead letter entry: %w", err)
	}

	err := h.jobs.Transition(ctx, job.ID, domain.JobStatusFailed, domain.JobStatusDeadLettered, storage.JobUpdate{})
	if err != nil {
		return fmt.Errorf("finalize dead-lettered job %s: %w", job.ID, err)
	}

	metrics.JobsDeadLettered.WithLabelValues(job.LastErrorClass).Inc()
	h.log.Warn("Job dead-lettered",
		"job_id", job.ID,
		"entry_id", job.EntryID,
		"classification", job.LastErrorClass,
		"attempts", job.Attempts,
		"reason", reason)

	if h.events != nil {
		event := &domain.Event{
			ID:      uuid.NewString(),
			Type:    domain.EventJobDeadLettered,
			EntryID: job.EntryID,
			OwnerID: job.OwnerID,
			Reason:  reason,
			Fields: map[string]string{
				"classification": job.LastErrorClass,
				"attempts":       fmt.Sprintf("%d", job.Attempts),
			},
			CreatedAt: h.now(),
		}
		if err := h.events.Publish(ctx, event); err != nil {
			// Notification loss is not worth failing the move over.
			h.log.Error("Failed to publish dead letter event", "error", err)
		}
	}
	return nil
}

// Stats aggregates the dead letter queue for operator visibility.
func (h *Handler) Stats(ctx context.Context) (*domain.DeadLetterStats, error) {
	return h.repo.Stats(ctx)
}

// Notifications returns actionable recurring-failure patterns: the same
// classification hitting the same owner repeatedly within the window.
func (h *Handler) Notifications(ctx context.Context) ([]domain.FailureNotification, error) {
	entries, err := h.repo.ListRecent(ctx, h.now().Add(-h.cfg.PatternWindow))
	if err != nil {
		return nil, err
	}

	type key struct {
		owner string
		class string
	}
	counts := make(map[key]int)
	lastSeen := make(map[key]time.Time)
	for _, e := range entries {
		k := key{e.OwnerID, e.Classification}
		counts[k]++
		if e.FailedAt.After(lastSeen[k]) {
			lastSeen[k] = e.FailedAt
		}
	}

	var out []domain.FailureNotification
	for k, n := range counts {
		if n < h.cfg.PatternThreshold {
			continue
		}
		out = append(out, domain.FailureNotification{
			OwnerID:        k.owner,
			Classification: k.class,
			Count:          n,
			LastSeen:       lastSeen[k],
			Message: fmt.Sprintf("%d %s failures for owner %s in the last %s",
				n, k.class, k.owner, h.cfg.PatternWindow),
		})
	}
	return out, nil
}
