// Package compare evaluates a degraded fallback result against a real
// inference result (or a predicted one) and decides whether re-analysis is
// worth scheduling.
package compare

import (
	"fmt"
	"math"
	"strings"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

// Config holds the tunable policy constants. The blending weights are
// policy, not invariants; they ship with defaults but live in configuration.
type Config struct {
	// NeutralBand buckets |score| below this to neutral.
	NeutralBand float64 `yaml:"neutral_band"`
	// ConfidenceWeight and CompletenessWeight blend the per-side quality
	// score.
	ConfidenceWeight   float64 `yaml:"confidence_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight"`
	// VeryLowQuality marks a fallback result bad enough to upgrade
	// regardless of agreement.
	VeryLowQuality float64 `yaml:"very_low_quality"`
}

// DefaultConfig provides the standard tuning.
var DefaultConfig = Config{
	NeutralBand:        0.2,
	ConfidenceWeight:   0.7,
	CompletenessWeight: 0.3,
	VeryLowQuality:     0.2,
}

// Engine is the comparison and upgrade decision engine.
type Engine struct {
	cfg Config
}

// New creates an engine, filling zero config fields from defaults.
func New(cfg Config) *Engine {
	if cfg.NeutralBand == 0 {
		cfg.NeutralBand = DefaultConfig.NeutralBand
	}
	if cfg.ConfidenceWeight == 0 {
		cfg.ConfidenceWeight = DefaultConfig.ConfidenceWeight
	}
	if cfg.CompletenessWeight == 0 {
		cfg.CompletenessWeight = DefaultConfig.CompletenessWeight
	}
	if cfg.VeryLowQuality == 0 {
		cfg.VeryLowQuality = DefaultConfig.VeryLowQuality
	}
	return &Engine{cfg: cfg}
}

// Compare evaluates a real result against a fallback result for the same
// entry.
func (e *Engine) Compare(ai *domain.AIResult, fb *domain.FallbackResult) domain.Comparison {
	agreement := e.sentimentAgreement(ai, fb)
	quality := e.qualityComparison(ai, fb)
	performance := e.performance(ai, fb)
	patterns := e.patternConsistency(ai, fb)
	rec := e.recommend(agreement, quality, fb)

	return domain.Comparison{
		SentimentAgreement:    agreement,
		QualityComparison:     quality,
		Performance:           performance,
		PatternConsistency:    patterns,
		UpgradeRecommendation: rec,
	}
}

// Bucket maps a continuous score in -1..1 onto a sentiment label using the
// symmetric neutral band.
func (e *Engine) Bucket(score float64) domain.Sentiment {
	switch {
	case score >= e.cfg.NeutralBand:
		return domain.SentimentPositive
	case score <= -e.cfg.NeutralBand:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

func (e *Engine) sentimentAgreement(ai *domain.AIResult, fb *domain.FallbackResult) domain.SentimentAgreement {
	aiBucket := e.Bucket(ai.SentimentScore)
	return domain.SentimentAgreement{
		Agreement:         aiBucket == fb.Sentiment,
		AISentiment:       aiBucket,
		FallbackSentiment: fb.Sentiment,
		ConfidenceDelta:   ai.Confidence - fb.Confidence,
	}
}

func (e *Engine) qualityComparison(ai *domain.AIResult, fb *domain.FallbackResult) domain.QualityComparison {
	aiQuality := e.aiQuality(ai)
	fbQuality := fb.QualityScore

	advantage := domain.QualityTie
	switch {
	case aiQuality > fbQuality+0.05:
		advantage = domain.QualityAI
	case fbQuality > aiQuality+0.05:
		advantage = domain.QualityFallback
	}

	return domain.QualityComparison{
		AIQuality:        aiQuality,
		FallbackQuality:  fbQuality,
		QualityAdvantage: advantage,
	}
}

// aiQuality blends confidence with completeness signals (keywords present,
// non-degenerate score).
func (e *Engine) aiQuality(ai *domain.AIResult) float64 {
	completeness := 0.4
	if len(ai.EmotionalKeywords) > 0 {
		completeness += 0.4
	}
	if math.Abs(ai.SentimentScore) > 0.01 {
		completeness += 0.2
	}
	q := ai.Confidence*e.cfg.ConfidenceWeight + completeness*e.cfg.CompletenessWeight
	if q > 1 {
		q = 1
	}
	return q
}

func (e *Engine) performance(ai *domain.AIResult, fb *domain.FallbackResult) domain.PerformanceComparison {
	speed := domain.QualityFallback
	if ai.ProcessingTime < fb.ProcessingTime {
		speed = domain.QualityAI
	} else if ai.ProcessingTime == fb.ProcessingTime {
		speed = domain.QualityTie
	}
	return domain.PerformanceComparison{
		SpeedAdvantage: speed,
		AITime:         ai.ProcessingTime,
		FallbackTime:   fb.ProcessingTime,
		AICost:         ai.APICost,
		FallbackCost:   0,
		CostSavings:    ai.APICost,
	}
}

func (e *Engine) patternConsistency(ai *domain.AIResult, fb *domain.FallbackResult) domain.PatternConsistency {
	aiSet := toSet(ai.EmotionalKeywords)
	fbSet := toSet(fb.KeywordsMatched)

	var shared []string
	union := make(map[string]bool, len(aiSet)+len(fbSet))
	for k := range aiSet {
		union[k] = true
		if fbSet[k] {
			shared = append(shared, k)
		}
	}
	for k := range fbSet {
		union[k] = true
	}

	overlap := 0.0
	if len(union) > 0 {
		overlap = float64(len(shared)) / float64(len(union))
	}
	return domain.PatternConsistency{
		KeywordOverlap: overlap,
		SharedKeywords: shared,
	}
}

func (e *Engine) recommend(agreement domain.SentimentAgreement, quality domain.QualityComparison, fb *domain.FallbackResult) domain.UpgradeRecommendation {
	disagree := !agreement.Agreement
	veryLow := quality.FallbackQuality < e.cfg.VeryLowQuality

	if !disagree && !veryLow {
		return domain.UpgradeRecommendation{
			ShouldUpgrade: false,
			Urgency:       domain.UrgencyLow,
			Reason:        "Fallback result agrees with the AI result and quality is acceptable",
		}
	}

	urgency := domain.UrgencyMedium
	var parts []string
	if disagree {
		parts = append(parts, fmt.Sprintf("sentiment disagreement (%s vs %s)",
			agreement.AISentiment, agreement.FallbackSentiment))
		// Stronger disagreement and a weaker fallback both raise urgency.
		if bucketDistance(agreement.AISentiment, agreement.FallbackSentiment) > 1 || fb.Confidence < 0.3 {
			urgency = domain.UrgencyHigh
		}
	}
	if veryLow {
		parts = append(parts, fmt.Sprintf("fallback quality %.2f is very low", quality.FallbackQuality))
		if !disagree {
			urgency = domain.UrgencyMedium
		}
		if fb.Confidence < 0.3 && disagree {
			urgency = domain.UrgencyHigh
		}
	}

	return domain.UpgradeRecommendation{
		ShouldUpgrade: true,
		Urgency:       urgency,
		Reason:        "Upgrade recommended: " + strings.Join(parts, "; "),
	}
}

// bucketDistance is 2 for positive vs negative, 1 for adjacent buckets.
func bucketDistance(a, b domain.Sentiment) int {
	rank := map[domain.Sentiment]int{
		domain.SentimentNegative: -1,
		domain.SentimentNeutral:  0,
		domain.SentimentPositive: 1,
	}
	d := rank[a] - rank[b]
	if d < 0 {
		d = -d
	}
	return d
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = true
	}
	return set
}
