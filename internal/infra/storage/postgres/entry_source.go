package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tcynic/resonant-sub007/internal/infra/inference"
)

// EntrySource reads journal entries from the journaling app's table. The
// table is owned by the app; this service only ever reads it.
type EntrySource struct {
	db *DB
}

// NewEntrySource creates an entry source over the shared database.
func NewEntrySource(db *DB) *EntrySource {
	return &EntrySource{db: db}
}

// GetEntry fetches one entry's analyzable content.
func (s *EntrySource) GetEntry(ctx context.Context, entryID string) (*inference.Entry, error) {
	query := `SELECT id, content, COALESCE(mood, 0) AS mood FROM journal_entries WHERE id = $1`

	var row struct {
		ID      string `db:"id"`
		Content string `db:"content"`
		Mood    int    `db:"mood"`
	}
	err := s.db.GetContext(ctx, &row, query, entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s not found", entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}

	return &inference.Entry{
		EntryID: row.ID,
		Content: row.Content,
		Mood:    row.Mood,
	}, nil
}
