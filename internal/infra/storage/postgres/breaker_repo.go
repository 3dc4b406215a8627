package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// BreakerRepo implements storage.BreakerRepository using PostgreSQL. The
// version column is the compare-and-swap token: every successful write bumps
// it, and a stale writer's UPDATE matches zero rows.
type BreakerRepo struct {
	db *DB
}

// NewBreakerRepo creates a new PostgreSQL breaker repository.
func NewBreakerRepo(db *DB) *BreakerRepo {
	return &BreakerRepo{db: db}
}

type breakerRow struct {
	Service          string     `db:"service"`
	Status           string     `db:"status"`
	FailureCount     int        `db:"failure_count"`
	SuccessCount     int        `db:"success_count"`
	TrialCount       int        `db:"trial_count"`
	LastFailureAt    *time.Time `db:"last_failure_at"`
	LastSuccessAt    *time.Time `db:"last_success_at"`
	NextRetryAt      *time.Time `db:"next_retry_at"`
	TimeoutMs        int64      `db:"timeout_ms"`
	FailureThreshold int        `db:"failure_threshold"`
	Version          int64      `db:"version"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (b *breakerRow) toDomain() *domain.BreakerState {
	return &domain.BreakerState{
		Service:          b.Service,
		Status:           domain.BreakerStatus(b.Status),
		FailureCount:     b.FailureCount,
		SuccessCount:     b.SuccessCount,
		TrialCount:       b.TrialCount,
		LastFailureAt:    b.LastFailureAt,
		LastSuccessAt:    b.LastSuccessAt,
		NextRetryAt:      b.NextRetryAt,
		Timeout:          time.Duration(b.TimeoutMs) * time.Millisecond,
		FailureThreshold: b.FailureThreshold,
		Version:          b.Version,
		UpdatedAt:        b.UpdatedAt,
	}
}

// Get retrieves breaker state for a service, initializing a closed record
// when none exists.
func (r *BreakerRepo) Get(ctx context.Context, service string, threshold int, timeout time.Duration) (*domain.BreakerState, error) {
	insert := `
		INSERT INTO breaker_states (service, status, failure_threshold, timeout_ms, version, updated_at)
		VALUES ($1, 'closed', $2, $3, 0, now())
		ON CONFLICT (service) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, service, threshold, timeout.Milliseconds()); err != nil {
		return nil, fmt.Errorf("failed to initialize breaker state: %w", err)
	}

	query := `
		SELECT service, status, failure_count, success_count, trial_count,
		       last_failure_at, last_success_at, next_retry_at,
		       timeout_ms, failure_threshold, version, updated_at
		FROM breaker_states
		WHERE service = $1
	`
	var row breakerRow
	if err := r.db.GetContext(ctx, &row, query, service); err != nil {
		return nil, fmt.Errorf("failed to get breaker state: %w", err)
	}
	return row.toDomain(), nil
}

// CompareAndSwap persists the new state only if the stored version still
// matches state.Version. On success state.Version is bumped in place.
func (r *BreakerRepo) CompareAndSwap(ctx context.Context, state *domain.BreakerState) error {
	query := `
		UPDATE breaker_states
		SET status = $1, failure_count = $2, success_count = $3, trial_count = $4,
		    last_failure_at = $5, last_success_at = $6, next_retry_at = $7,
		    timeout_ms = $8, failure_threshold = $9,
		    version = version + 1, updated_at = now()
		WHERE service = $10 AND version = $11
	`
	res, err := r.db.ExecContext(ctx, query,
		string(state.Status),
		state.FailureCount,
		state.SuccessCount,
		state.TrialCount,
		state.LastFailureAt,
		state.LastSuccessAt,
		state.NextRetryAt,
		state.Timeout.Milliseconds(),
		state.FailureThreshold,
		state.Service,
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to write breaker state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read breaker write result: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	state.Version++
	return nil
}
