package domain

import "time"

// QualitySide names which result won a quality comparison.
type QualitySide string

const (
	QualityAI       QualitySide = "ai"
	QualityFallback QualitySide = "fallback"
	QualityTie      QualitySide = "tie"
)

// Urgency grades how quickly an upgrade should happen.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// SentimentAgreement compares the bucketed sentiment of both results.
type SentimentAgreement struct {
	Agreement         bool      `json:"agreement"`
	AISentiment       Sentiment `json:"ai_sentiment"`
	FallbackSentiment Sentiment `json:"fallback_sentiment"`
	ConfidenceDelta   float64   `json:"confidence_delta"`
}

// QualityComparison scores each side and names the winner.
type QualityComparison struct {
	AIQuality        float64     `json:"ai_quality"`
	FallbackQuality  float64     `json:"fallback_quality"`
	QualityAdvantage QualitySide `json:"quality_advantage"`
}

// PerformanceComparison covers latency and cost.
type PerformanceComparison struct {
	SpeedAdvantage QualitySide   `json:"speed_advantage"`
	AITime         time.Duration `json:"ai_time"`
	FallbackTime   time.Duration `json:"fallback_time"`
	AICost         float64       `json:"ai_cost"`
	FallbackCost   float64       `json:"fallback_cost"`
	CostSavings    float64       `json:"cost_savings"`
}

// PatternConsistency measures keyword overlap between the two results.
type PatternConsistency struct {
	KeywordOverlap float64  `json:"keyword_overlap"` // shared / union
	SharedKeywords []string `json:"shared_keywords"`
}

// UpgradeRecommendation is the comparison engine's verdict on replacing a
// fallback result with a real one.
type UpgradeRecommendation struct {
	ShouldUpgrade bool    `json:"should_upgrade"`
	Urgency       Urgency `json:"urgency"`
	Reason        string  `json:"reason"`
}

// Comparison is the full AI-vs-fallback evaluation. Computed on demand,
// optionally logged, never stored.
type Comparison struct {
	SentimentAgreement    SentimentAgreement    `json:"sentiment_agreement"`
	QualityComparison     QualityComparison     `json:"quality_comparison"`
	Performance           PerformanceComparison `json:"performance"`
	PatternConsistency    PatternConsistency    `json:"pattern_consistency"`
	UpgradeRecommendation UpgradeRecommendation `json:"upgrade_recommendation"`
}

// UpgradeDecision is the answer to "should this stored fallback result be
// re-analyzed for real".
type UpgradeDecision struct {
	ShouldUpgrade       bool     `json:"should_upgrade"`
	Confidence          float64  `json:"confidence"`
	Reason              string   `json:"reason"`
	RecommendedPriority Priority `json:"recommended_priority"`
	EstimatedBenefit    float64  `json:"estimated_benefit"`
}
