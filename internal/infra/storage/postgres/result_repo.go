package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// ResultRepo implements storage.ResultRepository using PostgreSQL. String
// lists (insights, keywords) are stored as JSONB.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a new PostgreSQL result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

// SaveAI stores a real inference result.
func (r *ResultRepo) SaveAI(ctx context.Context, res *domain.AIResult) error {
	keywords, err := json.Marshal(res.EmotionalKeywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	query := `
		INSERT INTO ai_results (id, entry_id, sentiment_score, confidence, emotional_keywords, processing_time_ms, api_cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		res.ID,
		res.EntryID,
		res.SentimentScore,
		res.Confidence,
		keywords,
		res.ProcessingTime.Milliseconds(),
		res.APICost,
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save ai result: %w", err)
	}
	return nil
}

type fallbackRow struct {
	ID               string    `db:"id"`
	EntryID          string    `db:"entry_id"`
	Sentiment        string    `db:"sentiment"`
	Confidence       float64   `db:"confidence"`
	Insights         []byte    `db:"insights"`
	KeywordsMatched  []byte    `db:"keywords_matched"`
	Trigger          string    `db:"trigger"`
	QualityScore     float64   `db:"quality_score"`
	ProcessingTimeMs int64     `db:"processing_time_ms"`
	CreatedAt        time.Time `db:"created_at"`
}

func (f *fallbackRow) toDomain() (*domain.FallbackResult, error) {
	out := &domain.FallbackResult{
		ID:             f.ID,
		EntryID:        f.EntryID,
		Sentiment:      domain.Sentiment(f.Sentiment),
		Confidence:     f.Confidence,
		Trigger:        domain.FallbackTrigger(f.Trigger),
		QualityScore:   f.QualityScore,
		ProcessingTime: time.Duration(f.ProcessingTimeMs) * time.Millisecond,
		CreatedAt:      f.CreatedAt,
	}
	if len(f.Insights) > 0 {
		if err := json.Unmarshal(f.Insights, &out.Insights); err != nil {
			return nil, fmt.Errorf("failed to decode insights: %w", err)
		}
	}
	if len(f.KeywordsMatched) > 0 {
		if err := json.Unmarshal(f.KeywordsMatched, &out.KeywordsMatched); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
	}
	return out, nil
}

// SaveFallback stores a fallback result.
func (r *ResultRepo) SaveFallback(ctx context.Context, res *domain.FallbackResult) error {
	insights, err := json.Marshal(res.Insights)
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}
	keywords, err := json.Marshal(res.KeywordsMatched)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}

	query := `
		INSERT INTO fallback_results (id, entry_id, sentiment, confidence, insights, keywords_matched, trigger, quality_score, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		res.ID,
		res.EntryID,
		string(res.Sentiment),
		res.Confidence,
		insights,
		keywords,
		string(res.Trigger),
		res.QualityScore,
		res.ProcessingTime.Milliseconds(),
		res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save fallback result: %w", err)
	}
	return nil
}

// GetFallback retrieves a fallback result by ID.
func (r *ResultRepo) GetFallback(ctx context.Context, id string) (*domain.FallbackResult, error) {
	query := `
		SELECT id, entry_id, sentiment, confidence, insights, keywords_matched, trigger, quality_score, processing_time_ms, created_at
		FROM fallback_results
		WHERE id = $1
	`
	var row fallbackRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fallback result: %w", err)
	}
	return row.toDomain()
}

// RecentAIQuality returns confidence values of recent AI results, newest
// first.
func (r *ResultRepo) RecentAIQuality(ctx context.Context, since time.Time, limit int) ([]float64, error) {
	query := `
		SELECT confidence FROM ai_results
		WHERE created_at > $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var out []float64
	if err := r.db.SelectContext(ctx, &out, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list ai quality: %w", err)
	}
	return out, nil
}

// HasAISince reports whether the entry has an AI result newer than the
// given time.
func (r *ResultRepo) HasAISince(ctx context.Context, entryID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM ai_results
			WHERE entry_id = $1 AND created_at > $2
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, entryID, since); err != nil {
		return false, fmt.Errorf("failed to check for newer ai result: %w", err)
	}
	return exists, nil
}

// ListFallbacksSince returns fallback results created since the cutoff,
// newest first.
func (r *ResultRepo) ListFallbacksSince(ctx context.Context, since time.Time, limit int) ([]*domain.FallbackResult, error) {
	query := `
		SELECT id, entry_id, sentiment, confidence, insights, keywords_matched, trigger, quality_score, processing_time_ms, created_at
		FROM fallback_results
		WHERE created_at > $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var rows []fallbackRow
	if err := r.db.SelectContext(ctx, &rows, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list fallback results: %w", err)
	}
	out := make([]*domain.FallbackResult, 0, len(rows))
	for i := range rows {
		res, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}
