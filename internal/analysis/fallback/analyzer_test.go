package fallback

import (
	"testing"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

func TestGeneratePositive(t *testing.T) {
	a := New(Config{})
	res := a.Generate("entry-1",
		"We spent quality time together and I felt so grateful and happy. We laughed a lot and I feel closer to him than ever.",
		0, domain.TriggerCircuitBreakerOpen)

	if res.Sentiment != domain.SentimentPositive {
		t.Errorf("sentiment = %v, want positive (matched %v)", res.Sentiment, res.KeywordsMatched)
	}
	if len(res.KeywordsMatched) == 0 {
		t.Error("expected keyword matches")
	}
	if res.Trigger != domain.TriggerCircuitBreakerOpen {
		t.Errorf("trigger = %v", res.Trigger)
	}
	if len(res.Insights) == 0 {
		t.Error("expected insights")
	}
}

func TestGenerateNegative(t *testing.T) {
	a := New(Config{})
	res := a.Generate("entry-2",
		"We had another fight tonight. I was so angry and hurt, and she just ignored me. I feel lonely and disappointed.",
		0, domain.TriggerAPIUnavailable)

	if res.Sentiment != domain.SentimentNegative {
		t.Errorf("sentiment = %v, want negative (matched %v)", res.Sentiment, res.KeywordsMatched)
	}
}

func TestGenerateNeutralOnNoMatches(t *testing.T) {
	a := New(Config{})
	res := a.Generate("entry-3",
		"We went to the store and bought groceries for the week.",
		0, domain.TriggerRetryExhausted)

	if res.Sentiment != domain.SentimentNeutral {
		t.Errorf("sentiment = %v, want neutral", res.Sentiment)
	}
	if len(res.KeywordsMatched) != 0 {
		t.Errorf("unexpected matches: %v", res.KeywordsMatched)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := New(Config{})
	content := "I appreciate how supportive she was, even after the argument."
	r1 := a.Generate("e", content, 7, domain.TriggerManualRequest)
	r2 := a.Generate("e", content, 7, domain.TriggerManualRequest)

	if r1.Sentiment != r2.Sentiment || r1.Confidence != r2.Confidence {
		t.Errorf("non-deterministic: %v/%v vs %v/%v", r1.Sentiment, r1.Confidence, r2.Sentiment, r2.Confidence)
	}
}

func TestMoodAdjustment(t *testing.T) {
	a := New(Config{})
	content := "We talked about the week and made plans."

	low := a.Generate("e", content, 1, domain.TriggerManualRequest)
	high := a.Generate("e", content, 10, domain.TriggerManualRequest)

	if low.Sentiment != domain.SentimentNegative {
		t.Errorf("mood 1 sentiment = %v, want negative", low.Sentiment)
	}
	if high.Sentiment != domain.SentimentPositive {
		t.Errorf("mood 10 sentiment = %v, want positive", high.Sentiment)
	}
}

func TestConfidenceBounds(t *testing.T) {
	a := New(Config{})
	for _, content := range []string{
		"",
		"love love love love love",
		"a long entry with no emotional words at all just plain narration of events",
	} {
		res := a.Generate("e", content, 0, domain.TriggerManualRequest)
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Errorf("confidence out of range: %v for %q", res.Confidence, content)
		}
		if res.QualityScore < 0 || res.QualityScore > 1 {
			t.Errorf("quality out of range: %v for %q", res.QualityScore, content)
		}
	}
}
