// Package inference calls the external analysis API.
package inference

import (
	"context"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

// Entry is the analyzable payload handed to the inference service.
type Entry struct {
	EntryID string
	Content string
	Mood    int // 1-10, 0 when absent
}

// Analyzer produces a real analysis result for a journal entry. The worker
// only ever sees this interface; the Anthropic client and the test fakes
// both implement it.
type Analyzer interface {
	Analyze(ctx context.Context, entry Entry) (*domain.AIResult, error)
}
