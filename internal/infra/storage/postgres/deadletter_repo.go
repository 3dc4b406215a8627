package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

// DeadLetterRepo implements storage.DeadLetterRepository using PostgreSQL.
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a new PostgreSQL dead letter repository.
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db: db}
}

// Add persists a dead letter entry.
func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	query := `
		INSERT INTO dead_letters (id, job_id, entry_id, owner_id, reason, classification, attempts, last_error, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.JobID,
		entry.EntryID,
		entry.OwnerID,
		entry.Reason,
		entry.Classification,
		entry.Attempts,
		entry.LastError,
		entry.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add dead letter entry: %w", err)
	}
	return nil
}

// Stats aggregates the dead letter queue by classification and reason.
func (r *DeadLetterRepo) Stats(ctx context.Context) (*domain.DeadLetterStats, error) {
	stats := &domain.DeadLetterStats{
		ByClassification: make(map[string]int),
		ByReason:         make(map[string]int),
	}

	var byClass []struct {
		Classification string `db:"classification"`
		N              int    `db:"n"`
	}
	err := r.db.SelectContext(ctx, &byClass,
		`SELECT classification, count(*) AS n FROM dead_letters GROUP BY classification`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dead letters: %w", err)
	}
	for _, row := range byClass {
		stats.ByClassification[row.Classification] = row.N
		stats.Total += row.N
	}

	var byReason []struct {
		Reason string `db:"reason"`
		N      int    `db:"n"`
	}
	err = r.db.SelectContext(ctx, &byReason,
		`SELECT reason, count(*) AS n FROM dead_letters GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dead letters: %w", err)
	}
	for _, row := range byReason {
		stats.ByReason[row.Reason] = row.N
	}

	if stats.Total > 0 {
		var bounds struct {
			Oldest time.Time `db:"oldest"`
			Newest time.Time `db:"newest"`
		}
		err = r.db.GetContext(ctx, &bounds,
			`SELECT min(failed_at) AS oldest, max(failed_at) AS newest FROM dead_letters`)
		if err != nil {
			return nil, fmt.Errorf("failed to read dead letter bounds: %w", err)
		}
		stats.Oldest = &bounds.Oldest
		stats.Newest = &bounds.Newest
	}
	return stats, nil
}

// ListRecent returns entries failed since the cutoff.
func (r *DeadLetterRepo) ListRecent(ctx context.Context, since time.Time) ([]*domain.DeadLetterEntry, error) {
	query := `
		SELECT id, job_id, entry_id, owner_id, reason, classification, attempts, last_error, failed_at
		FROM dead_letters
		WHERE failed_at > $1
		ORDER BY failed_at DESC
	`
	var rows []domain.DeadLetterEntry
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	out := make([]*domain.DeadLetterEntry, 0, len(rows))
	for i := range rows {
		cp := rows[i]
		out = append(out, &cp)
	}
	return out, nil
}
