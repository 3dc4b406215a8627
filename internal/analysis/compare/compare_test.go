package compare

import (
	"strings"
	"testing"
	"time"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

func aiResult(score, confidence float64) *domain.AIResult {
	return &domain.AIResult{
		ID:                "ai-1",
		EntryID:           "entry-1",
		SentimentScore:    score,
		Confidence:        confidence,
		EmotionalKeywords: []string{"happy", "grateful"},
		ProcessingTime:    3 * time.Second,
		APICost:           0.02,
	}
}

func fbResult(sentiment domain.Sentiment, confidence, quality float64) *domain.FallbackResult {
	return &domain.FallbackResult{
		ID:              "fb-1",
		EntryID:         "entry-1",
		Sentiment:       sentiment,
		Confidence:      confidence,
		KeywordsMatched: []string{"happy", "warm"},
		Trigger:         domain.TriggerAPIUnavailable,
		QualityScore:    quality,
		ProcessingTime:  150 * time.Millisecond,
	}
}

func TestBucket(t *testing.T) {
	e := New(Config{})
	tests := []struct {
		score  float64
		expect domain.Sentiment
	}{
		{0.5, domain.SentimentPositive},
		{0.2, domain.SentimentPositive},
		{0.19, domain.SentimentNeutral},
		{0, domain.SentimentNeutral},
		{-0.19, domain.SentimentNeutral},
		{-0.2, domain.SentimentNegative},
		{-0.9, domain.SentimentNegative},
	}
	for _, tt := range tests {
		if got := e.Bucket(tt.score); got != tt.expect {
			t.Errorf("Bucket(%v) = %v, want %v", tt.score, got, tt.expect)
		}
	}
}

func TestCompareAgreement(t *testing.T) {
	e := New(Config{})
	c := e.Compare(aiResult(0.6, 0.9), fbResult(domain.SentimentPositive, 0.5, 0.6))

	if !c.SentimentAgreement.Agreement {
		t.Error("expected agreement for matching buckets")
	}
	if delta := c.SentimentAgreement.ConfidenceDelta; delta < 0.39 || delta > 0.41 {
		t.Errorf("ConfidenceDelta = %v, want 0.4", delta)
	}
	if c.UpgradeRecommendation.ShouldUpgrade {
		t.Error("no upgrade expected when buckets agree and quality is fine")
	}
}

func TestCompareDisagreement(t *testing.T) {
	e := New(Config{})
	c := e.Compare(aiResult(-0.6, 0.9), fbResult(domain.SentimentPositive, 0.5, 0.6))

	if c.SentimentAgreement.Agreement {
		t.Error("expected disagreement")
	}
	if !c.UpgradeRecommendation.ShouldUpgrade {
		t.Error("expected upgrade recommendation on disagreement")
	}
	if !strings.Contains(c.UpgradeRecommendation.Reason, "disagreement") {
		t.Errorf("reason %q must mention disagreement", c.UpgradeRecommendation.Reason)
	}
	if c.UpgradeRecommendation.Urgency != domain.UrgencyHigh {
		t.Errorf("urgency = %v, want high for positive-vs-negative", c.UpgradeRecommendation.Urgency)
	}
}

func TestComparePerformanceAndCost(t *testing.T) {
	e := New(Config{})
	c := e.Compare(aiResult(0.6, 0.9), fbResult(domain.SentimentPositive, 0.5, 0.6))

	if c.Performance.SpeedAdvantage != domain.QualityFallback {
		t.Errorf("SpeedAdvantage = %v, want fallback", c.Performance.SpeedAdvantage)
	}
	if c.Performance.CostSavings != 0.02 {
		t.Errorf("CostSavings = %v, want 0.02", c.Performance.CostSavings)
	}
	if c.Performance.FallbackCost != 0 {
		t.Errorf("FallbackCost = %v, want 0", c.Performance.FallbackCost)
	}
}

func TestCompareKeywordOverlap(t *testing.T) {
	e := New(Config{})
	c := e.Compare(aiResult(0.6, 0.9), fbResult(domain.SentimentPositive, 0.5, 0.6))

	// ai: {happy, grateful}, fb: {happy, warm} -> 1 shared / 3 union.
	if got := c.PatternConsistency.KeywordOverlap; got < 0.33 || got > 0.34 {
		t.Errorf("KeywordOverlap = %v, want 1/3", got)
	}
	if len(c.PatternConsistency.SharedKeywords) != 1 || c.PatternConsistency.SharedKeywords[0] != "happy" {
		t.Errorf("SharedKeywords = %v", c.PatternConsistency.SharedKeywords)
	}
}

func TestCompareVeryLowQualityUpgrades(t *testing.T) {
	e := New(Config{})
	c := e.Compare(aiResult(0.6, 0.9), fbResult(domain.SentimentPositive, 0.5, 0.1))

	if !c.UpgradeRecommendation.ShouldUpgrade {
		t.Error("expected upgrade for very low fallback quality despite agreement")
	}
}

func TestCompareQualityAdvantage(t *testing.T) {
	e := New(Config{})
	c := e.Compare(aiResult(0.6, 0.9), fbResult(domain.SentimentPositive, 0.5, 0.3))
	if c.QualityComparison.QualityAdvantage != domain.QualityAI {
		t.Errorf("QualityAdvantage = %v, want ai", c.QualityComparison.QualityAdvantage)
	}
}
