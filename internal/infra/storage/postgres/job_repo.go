package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// JobRepo implements storage.JobRepository using PostgreSQL. The
// one-active-job-per-entry rule is enforced by a partial unique index on
// entry_id over the active statuses; NextQueued claims via FOR UPDATE SKIP
// LOCKED so concurrent workers never grab the same job.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new PostgreSQL job repository.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `
	id, entry_id, owner_id, status, priority, attempts,
	queued_at, not_before, processing_started_at,
	last_error, last_error_class, result_ref, created_at, updated_at
`

type jobRow struct {
	ID                  string         `db:"id"`
	EntryID             string         `db:"entry_id"`
	OwnerID             string         `db:"owner_id"`
	Status              string         `db:"status"`
	Priority            string         `db:"priority"`
	Attempts            int            `db:"attempts"`
	QueuedAt            time.Time      `db:"queued_at"`
	NotBefore           time.Time      `db:"not_before"`
	ProcessingStartedAt *time.Time     `db:"processing_started_at"`
	LastError           sql.NullString `db:"last_error"`
	LastErrorClass      sql.NullString `db:"last_error_class"`
	ResultRef           sql.NullString `db:"result_ref"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (j *jobRow) toDomain() *domain.AnalysisJob {
	return &domain.AnalysisJob{
		ID:                  j.ID,
		EntryID:             j.EntryID,
		OwnerID:             j.OwnerID,
		Status:              domain.JobStatus(j.Status),
		Priority:            domain.Priority(j.Priority),
		Attempts:            j.Attempts,
		QueuedAt:            j.QueuedAt,
		NotBefore:           j.NotBefore,
		ProcessingStartedAt: j.ProcessingStartedAt,
		LastError:           j.LastError.String,
		LastErrorClass:      j.LastErrorClass.String,
		ResultRef:           j.ResultRef.String,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
	}
}

// Create inserts a new queued job.
func (r *JobRepo) Create(ctx context.Context, job *domain.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (id, entry_id, owner_id, status, priority, attempts, queued_at, not_before, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.EntryID,
		job.OwnerID,
		string(job.Status),
		string(job.Priority),
		job.Attempts,
		job.QueuedAt,
		job.NotBefore,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateActiveJob
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether the error is the partial unique index
// on active entry_id firing.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetByEntry retrieves the most recent job for an entry.
func (r *JobRepo) GetByEntry(ctx context.Context, entryID string) (*domain.AnalysisJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE entry_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var row jobRow
	err := r.db.GetContext(ctx, &row, query, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job by entry: %w", err)
	}
	return row.toDomain(), nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1`
	var row jobRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.toDomain(), nil
}

// NextQueued atomically claims the next due job and moves it to processing.
func (r *JobRepo) NextQueued(ctx context.Context, now time.Time) (*domain.AnalysisJob, error) {
	query := `
		UPDATE analysis_jobs
		SET status = 'processing', processing_started_at = $1, updated_at = $1
		WHERE id = (
			SELECT id FROM analysis_jobs
			WHERE status = 'queued' AND not_before <= $1
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 3
					WHEN 'high' THEN 2
					WHEN 'normal' THEN 1
					ELSE 0
				END DESC,
				queued_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns + `
	`
	var row jobRow
	err := r.db.GetContext(ctx, &row, query, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Nothing due
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	return row.toDomain(), nil
}

// Transition moves a job between statuses with a compare-and-set on the
// current status. The update's nil fields are left untouched.
func (r *JobRepo) Transition(ctx context.Context, jobID string, from, to domain.JobStatus, update storage.JobUpdate) error {
	sets := []string{"status = $1", "updated_at = now()"}
	args := []any{string(to)}

	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Priority != nil {
		appendSet("priority", string(*update.Priority))
	}
	if update.Attempts != nil {
		appendSet("attempts", *update.Attempts)
	}
	if update.NotBefore != nil {
		appendSet("not_before", *update.NotBefore)
	}
	if update.ProcessingStartedAt != nil {
		appendSet("processing_started_at", *update.ProcessingStartedAt)
	}
	if update.LastError != nil {
		appendSet("last_error", *update.LastError)
	}
	if update.LastErrorClass != nil {
		appendSet("last_error_class", *update.LastErrorClass)
	}
	if update.ResultRef != nil {
		appendSet("result_ref", *update.ResultRef)
	}

	args = append(args, jobID, string(from))
	query := fmt.Sprintf(
		"UPDATE analysis_jobs SET %s WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read transition result: %w", err)
	}
	if affected == 0 {
		// Either missing or no longer in the expected status.
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM analysis_jobs WHERE id = $1)`, jobID); err != nil {
			return fmt.Errorf("failed to check job existence: %w", err)
		}
		if !exists {
			return storage.ErrJobNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// CountAhead counts queued jobs that dequeue before the given job.
func (r *JobRepo) CountAhead(ctx context.Context, job *domain.AnalysisJob) (int, error) {
	query := `
		SELECT count(*) FROM analysis_jobs
		WHERE status = 'queued' AND id <> $1 AND (
			CASE priority WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END > $2
			OR (
				CASE priority WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END = $2
				AND queued_at <= $3
			)
		)
	`
	var count int
	err := r.db.GetContext(ctx, &count, query, job.ID, job.Priority.Rank(), job.QueuedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue position: %w", err)
	}
	return count, nil
}

// ListStaleProcessing returns jobs stuck in processing since before the cutoff.
func (r *JobRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*domain.AnalysisJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE status = 'processing' AND processing_started_at < $1
		ORDER BY queued_at ASC
	`
	return r.list(ctx, query, cutoff)
}

// ListRetryableFailed returns failed jobs whose NotBefore has passed.
func (r *JobRepo) ListRetryableFailed(ctx context.Context, now time.Time) ([]*domain.AnalysisJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE status = 'failed' AND not_before <= $1
		ORDER BY queued_at ASC
	`
	return r.list(ctx, query, now)
}

// ListExpired returns non-terminal jobs created before the cutoff.
func (r *JobRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]*domain.AnalysisJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE status NOT IN ('completed', 'dead_lettered') AND created_at < $1
		ORDER BY queued_at ASC
	`
	return r.list(ctx, query, cutoff)
}

func (r *JobRepo) list(ctx context.Context, query string, args ...any) ([]*domain.AnalysisJob, error) {
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	out := make([]*domain.AnalysisJob, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	query := `SELECT status, count(*) AS n FROM analysis_jobs GROUP BY status`
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	out := make(map[domain.JobStatus]int, len(rows))
	for _, row := range rows {
		out[domain.JobStatus(row.Status)] = row.N
	}
	return out, nil
}
