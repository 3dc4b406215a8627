// Package fallback produces a deterministic, locally computed analysis when
// the real inference dependency cannot be called. It never fails and never
// leaves the process.
package fallback

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

// Mood is an optional self-reported mood signal accompanying an entry,
// on a 1 (low) to 10 (high) scale. Zero means not provided.
type Mood int

// Config tunes the scoring heuristics.
type Config struct {
	// NeutralBand is the absolute score below which sentiment buckets to
	// neutral. Shared with the comparison engine.
	NeutralBand float64 `yaml:"neutral_band"`
	// MoodWeight scales how far the mood signal can push the score.
	MoodWeight float64 `yaml:"mood_weight"`
}

// DefaultConfig provides the standard tuning.
var DefaultConfig = Config{
	NeutralBand: 0.2,
	MoodWeight:  0.3,
}

// Analyzer is the rule-based degraded analyzer.
type Analyzer struct {
	cfg Config
}

// New creates an analyzer, filling zero config fields from defaults.
func New(cfg Config) *Analyzer {
	if cfg.NeutralBand == 0 {
		cfg.NeutralBand = DefaultConfig.NeutralBand
	}
	if cfg.MoodWeight == 0 {
		cfg.MoodWeight = DefaultConfig.MoodWeight
	}
	return &Analyzer{cfg: cfg}
}

// Generate scores content against the lexicons and returns a complete
// fallback result tagged with why the fallback path ran. mood may be 0.
func (a *Analyzer) Generate(entryID, content string, mood Mood, trigger domain.FallbackTrigger) *domain.FallbackResult {
	start := time.Now()

	matched, score := a.score(content)
	score = a.adjustForMood(score, mood)
	score = clamp(score, -1, 1)

	sentiment := a.bucket(score)
	confidence := a.confidence(content, matched)

	res := &domain.FallbackResult{
		ID:              uuid.NewString(),
		EntryID:         entryID,
		Sentiment:       sentiment,
		Confidence:      confidence,
		Insights:        append([]string(nil), insightsBySentiment[string(sentiment)]...),
		KeywordsMatched: matched,
		Trigger:         trigger,
		QualityScore:    a.quality(confidence, matched, content),
		ProcessingTime:  time.Since(start),
		CreatedAt:       time.Now(),
	}
	return res
}

// score tallies lexicon hits and returns the matched keywords plus a raw
// score in roughly -1..1.
func (a *Analyzer) score(content string) (matched []string, score float64) {
	lower := strings.ToLower(content)
	words := tokenize(lower)

	var pos, neg int
	for _, p := range positivePhrases {
		if strings.Contains(lower, p) {
			pos++
			matched = append(matched, p)
		}
	}
	for _, p := range negativePhrases {
		if strings.Contains(lower, p) {
			neg++
			matched = append(matched, p)
		}
	}
	for _, w := range positiveWords {
		if words[w] {
			pos++
			matched = append(matched, w)
		}
	}
	for _, w := range negativeWords {
		if words[w] {
			neg++
			matched = append(matched, w)
		}
	}

	total := pos + neg
	if total == 0 {
		return nil, 0
	}
	return matched, float64(pos-neg) / float64(total)
}

// adjustForMood nudges the lexicon score toward the self-reported mood.
// Mood 5-6 is treated as neutral and changes nothing.
func (a *Analyzer) adjustForMood(score float64, mood Mood) float64 {
	if mood < 1 || mood > 10 {
		return score
	}
	// Map 1..10 onto -1..1.
	moodScore := (float64(mood) - 5.5) / 4.5
	return score + moodScore*a.cfg.MoodWeight
}

func (a *Analyzer) bucket(score float64) domain.Sentiment {
	switch {
	case score >= a.cfg.NeutralBand:
		return domain.SentimentPositive
	case score <= -a.cfg.NeutralBand:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// confidence grows with match density, capped well below what a real
// analysis would claim.
func (a *Analyzer) confidence(content string, matched []string) float64 {
	wordCount := len(strings.Fields(content))
	if wordCount == 0 {
		return 0.1
	}
	density := float64(len(matched)) / float64(wordCount)
	conf := 0.3 + density*2
	return clamp(conf, 0.1, 0.7)
}

// quality folds confidence and signal strength into the composite score the
// upgrade engine compares against real-analysis quality.
func (a *Analyzer) quality(confidence float64, matched []string, content string) float64 {
	completeness := 0.2
	if len(matched) > 0 {
		completeness += 0.3
	}
	if len(strings.Fields(content)) >= 20 {
		completeness += 0.2
	}
	return clamp(confidence*0.6+completeness*0.4, 0, 1)
}

// tokenize splits lowercased content into a word set, trimming punctuation.
func tokenize(lower string) map[string]bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, "'")] = true
	}
	return set
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
