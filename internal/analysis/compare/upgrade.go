package compare

import (
	"context"
	"fmt"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// UpgradeOptions tune one upgrade evaluation.
type UpgradeOptions struct {
	// QualityThreshold is the fallback quality below which an upgrade is
	// warranted outright. Zero means the engine default.
	QualityThreshold float64
	// CostThreshold caps the estimated benefit required to justify the API
	// spend. Zero means no cap.
	CostThreshold float64
	// ForceUpgrade bypasses all policy.
	ForceUpgrade bool
}

// sampleWindow bounds how far back recent AI results inform the predicted
// quality.
const (
	sampleWindow = 24 * time.Hour
	sampleLimit  = 20
)

// ShouldUpgrade decides whether a stored fallback result should be replaced
// by scheduling a real re-analysis.
func (e *Engine) ShouldUpgrade(ctx context.Context, results storage.ResultRepository, fallbackID string, opts UpgradeOptions) (*domain.UpgradeDecision, error) {
	if opts.ForceUpgrade {
		return &domain.UpgradeDecision{
			ShouldUpgrade:       true,
			Confidence:          1.0,
			Reason:              "Force upgrade requested",
			RecommendedPriority: domain.PriorityHigh,
		}, nil
	}

	fb, err := results.GetFallback(ctx, fallbackID)
	if err != nil {
		return nil, fmt.Errorf("load fallback result: %w", err)
	}

	threshold := opts.QualityThreshold
	if threshold == 0 {
		threshold = e.cfg.VeryLowQuality
	}
	veryLow := fb.QualityScore < threshold

	// An open breaker means the dependency is likely still degraded:
	// re-analyzing now would just burn a retry. Hold off unless the
	// fallback is bad enough that any real answer beats it.
	if fb.Trigger == domain.TriggerCircuitBreakerOpen && !veryLow {
		return &domain.UpgradeDecision{
			ShouldUpgrade:       false,
			Confidence:          0.7,
			Reason:              fmt.Sprintf("Circuit breaker was open; service likely still degraded (quality %.2f acceptable)", fb.QualityScore),
			RecommendedPriority: domain.PriorityLow,
		}, nil
	}

	samples, err := results.RecentAIQuality(ctx, time.Now().Add(-sampleWindow), sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("sample recent quality: %w", err)
	}

	if len(samples) == 0 {
		if veryLow {
			return &domain.UpgradeDecision{
				ShouldUpgrade:       true,
				Confidence:          0.85,
				Reason:              fmt.Sprintf("Fallback quality %.2f is very low and no recent AI signal exists", fb.QualityScore),
				RecommendedPriority: domain.PriorityHigh,
				EstimatedBenefit:    1 - fb.QualityScore,
			}, nil
		}
		return &domain.UpgradeDecision{
			ShouldUpgrade:       false,
			Confidence:          0.5,
			Reason:              "No recent AI results to estimate benefit; fallback quality acceptable",
			RecommendedPriority: domain.PriorityLow,
		}, nil
	}

	predicted := mean(samples)
	benefit := predicted - fb.QualityScore
	if opts.CostThreshold > 0 && benefit < opts.CostThreshold {
		return &domain.UpgradeDecision{
			ShouldUpgrade:       false,
			Confidence:          0.6,
			Reason:              fmt.Sprintf("Estimated benefit %.2f below cost threshold %.2f", benefit, opts.CostThreshold),
			RecommendedPriority: domain.PriorityLow,
			EstimatedBenefit:    benefit,
		}, nil
	}

	if benefit <= 0.1 && !veryLow {
		return &domain.UpgradeDecision{
			ShouldUpgrade:       false,
			Confidence:          0.6,
			Reason:              fmt.Sprintf("Predicted AI quality %.2f offers little over fallback %.2f", predicted, fb.QualityScore),
			RecommendedPriority: domain.PriorityLow,
			EstimatedBenefit:    benefit,
		}, nil
	}

	return &domain.UpgradeDecision{
		ShouldUpgrade:       true,
		Confidence:          clampConfidence(0.5 + benefit),
		Reason:              fmt.Sprintf("Predicted AI quality %.2f exceeds fallback %.2f", predicted, fb.QualityScore),
		RecommendedPriority: priorityForQuality(fb.QualityScore, threshold),
		EstimatedBenefit:    benefit,
	}, nil
}

// priorityForQuality maps fallback quality to re-analysis priority: the
// worse the stored result, the sooner it should be replaced.
func priorityForQuality(quality, threshold float64) domain.Priority {
	switch {
	case quality < threshold:
		return domain.PriorityHigh
	case quality < 0.5:
		return domain.PriorityNormal
	default:
		return domain.PriorityLow
	}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clampConfidence(v float64) float64 {
	if v > 0.95 {
		return 0.95
	}
	if v < 0.05 {
		return 0.05
	}
	return v
}
