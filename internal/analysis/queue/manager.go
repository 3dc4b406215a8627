// Package queue owns the analysis job lifecycle: admission, ordering,
// status reporting, failure routing, and the self-healing sweep.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tcynic/resonant-sub007/internal/analysis/classify"
	"github.com/tcynic/resonant-sub007/internal/analysis/metrics"
	"github.com/tcynic/resonant-sub007/internal/analysis/retry"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// DeadLetterer receives jobs the retry strategy gave up on.
type DeadLetterer interface {
	Move(ctx context.Context, job *domain.AnalysisJob, reason string) error
}

// Config tunes the queue manager.
type Config struct {
	// StaleProcessingAfter is how long a job may sit in processing before
	// the sweep assumes its worker died.
	StaleProcessingAfter time.Duration `yaml:"stale_processing_after"`
	// MaxJobAge expires jobs that never managed to finish; they dead-letter
	// without a final call attempt.
	MaxJobAge time.Duration `yaml:"max_job_age"`
	// ETAWindow is the moving-average window for completion estimates.
	ETAWindow int `yaml:"eta_window"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	StaleProcessingAfter: 5 * time.Minute,
	MaxJobAge:            24 * time.Hour,
	ETAWindow:            20,
}

// Manager coordinates the job lifecycle against the durable store.
type Manager struct {
	cfg      Config
	jobs     storage.JobRepository
	strategy *retry.Strategy
	dead     DeadLetterer
	eta      *etaEstimator
	log      *slog.Logger
	now      func() time.Time
}

// New creates a queue manager.
func New(cfg Config, jobs storage.JobRepository, strategy *retry.Strategy, dead DeadLetterer, log *slog.Logger) *Manager {
	if cfg.StaleProcessingAfter == 0 {
		cfg.StaleProcessingAfter = DefaultConfig.StaleProcessingAfter
	}
	if cfg.MaxJobAge == 0 {
		cfg.MaxJobAge = DefaultConfig.MaxJobAge
	}
	if cfg.ETAWindow == 0 {
		cfg.ETAWindow = DefaultConfig.ETAWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		jobs:     jobs,
		strategy: strategy,
		dead:     dead,
		eta:      newETAEstimator(cfg.ETAWindow),
		log:      log.With("component", "queue"),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Enqueue admits a new analysis job for an entry. Returns
// storage.ErrDuplicateActiveJob when the entry already has a job in queued
// or processing; a new job is accepted again once the prior one reaches a
// terminal state.
func (m *Manager) Enqueue(ctx context.Context, entryID, ownerID string, priority domain.Priority) (*domain.AnalysisJob, error) {
	if entryID == "" || ownerID == "" {
		return nil, fmt.Errorf("entry and owner are required")
	}
	if priority.Rank() < domain.PriorityNormal.Rank() {
		priority = domain.PriorityNormal
	}

	now := m.now()
	job := &domain.AnalysisJob{
		ID:        uuid.NewString(),
		EntryID:   entryID,
		OwnerID:   ownerID,
		Status:    domain.JobStatusQueued,
		Priority:  priority,
		QueuedAt:  now,
		NotBefore: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	metrics.JobsEnqueued.WithLabelValues(string(priority)).Inc()
	m.log.Debug("Job enqueued", "job_id", job.ID, "entry_id", entryID, "priority", priority)
	return job, nil
}

// DequeueNext claims the next due job and moves it to processing. Returns
// nil, nil when the queue has nothing due.
func (m *Manager) DequeueNext(ctx context.Context) (*domain.AnalysisJob, error) {
	return m.jobs.NextQueued(ctx, m.now())
}

// Status reports a job's current state, queue position, and ETA.
func (m *Manager) Status(ctx context.Context, entryID string) (*domain.JobStatusReport, error) {
	job, err := m.jobs.GetByEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	report := &domain.JobStatusReport{Status: job.Status, Error: job.LastError}
	switch job.Status {
	case domain.JobStatusQueued:
		ahead, err := m.jobs.CountAhead(ctx, job)
		if err != nil {
			return nil, err
		}
		report.QueuePosition = ahead
		report.ETA = m.eta.Estimate(ahead)
	case domain.JobStatusProcessing:
		report.ETA = m.eta.Average()
	}
	return report, nil
}

// Complete moves an entry's processing job to completed and records its
// duration for future ETAs.
func (m *Manager) Complete(ctx context.Context, entryID, resultRef string) error {
	job, err := m.jobs.GetByEntry(ctx, entryID)
	if err != nil {
		return err
	}

	err = m.jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, storage.JobUpdate{
		ResultRef: &resultRef,
	})
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}

	if job.ProcessingStartedAt != nil {
		m.eta.Record(m.now().Sub(*job.ProcessingStartedAt))
	}
	m.log.Info("Job completed", "job_id", job.ID, "entry_id", entryID)
	return nil
}

// Fail records a processing failure, then either re-queues the job per the
// retry decision or hands it to the dead letter path.
func (m *Manager) Fail(ctx context.Context, entryID string, callErr error) error {
	job, err := m.jobs.GetByEntry(ctx, entryID)
	if err != nil {
		return err
	}

	msg := ""
	if callErr != nil {
		msg = callErr.Error()
	}
	class := string(classify.Classify(msg))
	metrics.JobsFailed.WithLabelValues(class).Inc()

	attempts := job.Attempts + 1
	rc := retry.NewContext(job, callErr)
	decision := m.strategy.Decide(rc)

	m.log.Info("Job failed",
		"job_id", job.ID,
		"entry_id", entryID,
		"classification", decision.ErrorClassification,
		"attempt", attempts,
		"recommendation", retry.Recommendation(decision))

	if decision.ShouldRetry {
		notBefore := m.now().Add(decision.BackoffDelay)
		err = m.jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusQueued, storage.JobUpdate{
			Priority:       &decision.NewPriority,
			Attempts:       &attempts,
			NotBefore:      &notBefore,
			LastError:      &msg,
			LastErrorClass: &decision.ErrorClassification,
		})
		if err != nil {
			return fmt.Errorf("requeue job %s: %w", job.ID, err)
		}
		metrics.JobsRetried.WithLabelValues(string(decision.NewPriority)).Inc()
		return nil
	}

	// Terminal: record the failure on the job, then dead-letter it.
	err = m.jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed, storage.JobUpdate{
		Attempts:       &attempts,
		LastError:      &msg,
		LastErrorClass: &decision.ErrorClassification,
	})
	if err != nil {
		return fmt.Errorf("mark job %s failed: %w", job.ID, err)
	}
	job.Attempts = attempts
	job.LastError = msg
	job.LastErrorClass = decision.ErrorClassification
	job.Status = domain.JobStatusFailed
	return m.dead.Move(ctx, job, retry.Recommendation(decision))
}

// AutoRequeue is the periodic self-healing sweep. It re-queues retryable
// failed jobs whose backoff has elapsed, recovers processing jobs orphaned
// by crashed workers, and expires jobs past the maximum age straight to the
// dead letter queue.
func (m *Manager) AutoRequeue(ctx context.Context) error {
	now := m.now()
	var errs []error

	// Jobs that never got past a too-old lifecycle: dead-letter them first
	// so the other passes do not resurrect them.
	expired, err := m.jobs.ListExpired(ctx, now.Add(-m.cfg.MaxJobAge))
	if err != nil {
		errs = append(errs, err)
	}
	for _, job := range expired {
		if err := m.jobs.Transition(ctx, job.ID, job.Status, domain.JobStatusFailed, storage.JobUpdate{}); err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				errs = append(errs, err)
			}
			continue
		}
		job.Status = domain.JobStatusFailed
		if err := m.dead.Move(ctx, job, "job exceeded maximum age"); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.SweepRequeues.WithLabelValues("expired").Inc()
		m.log.Warn("Job expired by sweep", "job_id", job.ID, "entry_id", job.EntryID)
	}

	stale, err := m.jobs.ListStaleProcessing(ctx, now.Add(-m.cfg.StaleProcessingAfter))
	if err != nil {
		errs = append(errs, err)
	}
	for _, job := range stale {
		err := m.jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusQueued, storage.JobUpdate{
			NotBefore: &now,
		})
		if err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				errs = append(errs, err)
			}
			continue
		}
		metrics.SweepRequeues.WithLabelValues("orphaned").Inc()
		m.log.Warn("Orphaned job re-queued", "job_id", job.ID, "entry_id", job.EntryID)
	}

	failed, err := m.jobs.ListRetryableFailed(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	for _, job := range failed {
		if !classify.IsRecoverable(job.LastError) {
			continue
		}
		err := m.jobs.Transition(ctx, job.ID, domain.JobStatusFailed, domain.JobStatusQueued, storage.JobUpdate{
			NotBefore: &now,
		})
		if err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				errs = append(errs, err)
			}
			continue
		}
		metrics.SweepRequeues.WithLabelValues("failed").Inc()
		m.log.Info("Retryable failed job re-queued", "job_id", job.ID, "entry_id", job.EntryID)
	}

	return errors.Join(errs...)
}

// RefreshDepthMetrics updates the queue depth gauges.
func (m *Manager) RefreshDepthMetrics(ctx context.Context) error {
	counts, err := m.jobs.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range []domain.JobStatus{
		domain.JobStatusQueued,
		domain.JobStatusProcessing,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
		domain.JobStatusDeadLettered,
	} {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	return nil
}
