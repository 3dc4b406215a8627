package domain

import "time"

// Sentiment is the bucketed sentiment label shared by AI and fallback
// results.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// FallbackTrigger says why the fallback analyzer ran instead of the real
// inference service. Closed set so the upgrade engine can switch
// exhaustively instead of comparing strings.
type FallbackTrigger string

const (
	TriggerCircuitBreakerOpen FallbackTrigger = "circuit_breaker_open"
	TriggerAPIUnavailable     FallbackTrigger = "api_unavailable"
	TriggerRetryExhausted     FallbackTrigger = "retry_exhausted"
	TriggerManualRequest      FallbackTrigger = "manual_request"
)

// FallbackResult is the deterministic degraded analysis produced locally.
type FallbackResult struct {
	ID              string          `json:"id" db:"id"`
	EntryID         string          `json:"entry_id" db:"entry_id"`
	Sentiment       Sentiment       `json:"sentiment" db:"sentiment"`
	Confidence      float64         `json:"confidence" db:"confidence"`
	Insights        []string        `json:"insights"`
	KeywordsMatched []string        `json:"keywords_matched"`
	Trigger         FallbackTrigger `json:"trigger" db:"trigger"`
	QualityScore    float64         `json:"quality_score" db:"quality_score"`
	ProcessingTime  time.Duration   `json:"processing_time" db:"processing_time"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// AIResult is a real inference result at the boundary this service cares
// about: score, confidence, keywords, latency and cost.
type AIResult struct {
	ID                string        `json:"id" db:"id"`
	EntryID           string        `json:"entry_id" db:"entry_id"`
	SentimentScore    float64       `json:"sentiment_score" db:"sentiment_score"` // -1..1
	Confidence        float64       `json:"confidence" db:"confidence"`
	EmotionalKeywords []string      `json:"emotional_keywords"`
	ProcessingTime    time.Duration `json:"processing_time" db:"processing_time"`
	APICost           float64       `json:"api_cost" db:"api_cost"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}
