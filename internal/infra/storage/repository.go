package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

var (
	// ErrDuplicateActiveJob is returned when an entry already has a job in
	// queued or processing.
	ErrDuplicateActiveJob = errors.New("entry already has an active job")

	// ErrJobNotFound is returned when no job exists for the given key.
	ErrJobNotFound = errors.New("job not found")

	// ErrConflict is returned when a compare-and-set transition loses the
	// race (the stored state no longer matches the expected one).
	ErrConflict = errors.New("state changed concurrently")

	// ErrResultNotFound is returned when no stored result matches.
	ErrResultNotFound = errors.New("result not found")
)

// JobUpdate carries the mutable fields applied alongside a status
// transition. Nil fields are left untouched.
type JobUpdate struct {
	Priority            *domain.Priority
	Attempts            *int
	NotBefore           *time.Time
	ProcessingStartedAt *time.Time
	LastError           *string
	LastErrorClass      *string
	ResultRef           *string
}

// JobRepository handles analysis job storage.
type JobRepository interface {
	// Create inserts a new queued job. Returns ErrDuplicateActiveJob if the
	// entry already has an active job.
	Create(ctx context.Context, job *domain.AnalysisJob) error

	// GetByEntry retrieves the most recent job for an entry.
	GetByEntry(ctx context.Context, entryID string) (*domain.AnalysisJob, error)

	// GetByID retrieves a job by its ID.
	GetByID(ctx context.Context, id string) (*domain.AnalysisJob, error)

	// NextQueued atomically claims the next due queued job (highest
	// priority first, FIFO within a band, NotBefore <= now) and moves it to
	// processing. Returns nil, nil when nothing is due. Two concurrent
	// callers never claim the same job.
	NextQueued(ctx context.Context, now time.Time) (*domain.AnalysisJob, error)

	// Transition moves a job from one status to another with a
	// compare-and-set on the current status. Returns ErrConflict if the job
	// is no longer in the expected status.
	Transition(ctx context.Context, jobID string, from, to domain.JobStatus, update JobUpdate) error

	// CountAhead counts queued jobs that dequeue before the given job:
	// higher priority, or same priority with earlier-or-equal QueuedAt.
	CountAhead(ctx context.Context, job *domain.AnalysisJob) (int, error)

	// ListStaleProcessing returns jobs stuck in processing since before the
	// cutoff (orphaned by a crashed worker).
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.AnalysisJob, error)

	// ListRetryableFailed returns failed jobs whose NotBefore has passed.
	ListRetryableFailed(ctx context.Context, now time.Time) ([]*domain.AnalysisJob, error)

	// ListExpired returns non-terminal jobs created before the cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*domain.AnalysisJob, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}

// BreakerRepository owns circuit breaker state. All mutation is
// compare-and-swap on the record version.
type BreakerRepository interface {
	// Get retrieves breaker state for a service, initializing a closed
	// record with the given defaults when none exists.
	Get(ctx context.Context, service string, threshold int, timeout time.Duration) (*domain.BreakerState, error)

	// CompareAndSwap persists the new state only if the stored version
	// still matches state.Version. Returns ErrConflict otherwise. On
	// success the stored version is state.Version+1.
	CompareAndSwap(ctx context.Context, state *domain.BreakerState) error
}

// ResultRepository stores analysis results from both paths.
type ResultRepository interface {
	// SaveAI stores a real inference result.
	SaveAI(ctx context.Context, res *domain.AIResult) error

	// SaveFallback stores a fallback result.
	SaveFallback(ctx context.Context, res *domain.FallbackResult) error

	// GetFallback retrieves a fallback result by ID.
	GetFallback(ctx context.Context, id string) (*domain.FallbackResult, error)

	// RecentAIQuality returns confidence values of AI results stored since
	// the cutoff, newest first, used to predict upgrade benefit.
	RecentAIQuality(ctx context.Context, since time.Time, limit int) ([]float64, error)

	// HasAISince reports whether the entry has an AI result newer than the
	// given time. A fallback result superseded this way is never worth a
	// paid re-analysis.
	HasAISince(ctx context.Context, entryID string, since time.Time) (bool, error)

	// ListFallbacksSince returns fallback results created since the cutoff,
	// the upgrade scan's candidate set.
	ListFallbacksSince(ctx context.Context, since time.Time, limit int) ([]*domain.FallbackResult, error)
}

// DeadLetterRepository stores terminally failed jobs.
type DeadLetterRepository interface {
	// Add persists a dead letter entry.
	Add(ctx context.Context, entry *domain.DeadLetterEntry) error

	// Stats aggregates the queue by classification and reason.
	Stats(ctx context.Context) (*domain.DeadLetterStats, error)

	// ListRecent returns entries failed since the cutoff.
	ListRecent(ctx context.Context, since time.Time) ([]*domain.DeadLetterEntry, error)
}
