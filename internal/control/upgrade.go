package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tcynic/resonant-sub007/internal/analysis/compare"
	"github.com/tcynic/resonant-sub007/internal/analysis/metrics"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// Candidate window and cap for one upgrade scan pass.
const (
	upgradeScanWindow = 24 * time.Hour
	upgradeScanLimit  = 50
)

// ScanForUpgrades walks recent fallback results and schedules high-priority
// re-analysis for the ones worth replacing with a real result.
func (s *Service) ScanForUpgrades(ctx context.Context) error {
	candidates, err := s.results.ListFallbacksSince(ctx, time.Now().Add(-upgradeScanWindow), upgradeScanLimit)
	if err != nil {
		return fmt.Errorf("list upgrade candidates: %w", err)
	}

	opts := compare.UpgradeOptions{
		QualityThreshold: s.cfg.Upgrade.QualityThreshold,
		CostThreshold:    s.cfg.Upgrade.CostThreshold,
	}

	var errs []error
	for _, fb := range candidates {
		// A completed re-analysis leaves the stale fallback row behind;
		// skip it so the entry is not scheduled for another paid call.
		superseded, err := s.results.HasAISince(ctx, fb.EntryID, fb.CreatedAt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if superseded {
			continue
		}

		decision, err := s.compare.ShouldUpgrade(ctx, s.results, fb.ID, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !decision.ShouldUpgrade {
			continue
		}

		priority := decision.RecommendedPriority
		if priority.Rank() < domain.PriorityNormal.Rank() {
			priority = domain.PriorityNormal
		}
		if _, err := s.queue.Enqueue(ctx, fb.EntryID, ownerForEntry(ctx, s.jobs, fb.EntryID), priority); err != nil {
			if errors.Is(err, storage.ErrDuplicateActiveJob) {
				continue // Already being re-analyzed
			}
			errs = append(errs, err)
			continue
		}

		metrics.UpgradesScheduled.Inc()
		s.log.Info("Upgrade scheduled",
			"entry_id", fb.EntryID,
			"fallback_id", fb.ID,
			"confidence", decision.Confidence,
			"reason", decision.Reason)

		event := &domain.Event{
			ID:      newEventID(),
			Type:    domain.EventUpgradeRecommended,
			EntryID: fb.EntryID,
			Reason:  decision.Reason,
			Fields: map[string]string{
				"fallback_id": fb.ID,
				"confidence":  fmt.Sprintf("%.2f", decision.Confidence),
				"priority":    string(priority),
			},
			CreatedAt: time.Now(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Error("Failed to publish upgrade event", "error", err)
		}
	}
	return errors.Join(errs...)
}

// ownerForEntry recovers the owner from the entry's job history; fallback
// results do not carry the owner themselves.
func ownerForEntry(ctx context.Context, jobs storage.JobRepository, entryID string) string {
	job, err := jobs.GetByEntry(ctx, entryID)
	if err != nil {
		return "unknown"
	}
	return job.OwnerID
}
