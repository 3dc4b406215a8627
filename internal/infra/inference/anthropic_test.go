package inference

import "testing"

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantScore float64
		wantErr   bool
	}{
		{
			name:      "bare object",
			text:      `{"sentiment_score": 0.6, "confidence": 0.9, "emotional_keywords": ["grateful"]}`,
			wantScore: 0.6,
		},
		{
			name:      "wrapped in prose",
			text:      "Here is the analysis:\n```json\n{\"sentiment_score\": -0.4, \"confidence\": 0.7, \"emotional_keywords\": []}\n```",
			wantScore: -0.4,
		},
		{
			name:    "no json",
			text:    "I cannot analyze this entry.",
			wantErr: true,
		},
		{
			name:    "score out of range",
			text:    `{"sentiment_score": 3.0, "confidence": 0.5}`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			text:    `{"sentiment_score": 0.1, "confidence": 1.5}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			text:    `{"sentiment_score": 0.1,`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAnalysis(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got.SentimentScore != tt.wantScore {
				t.Errorf("SentimentScore = %v, want %v", got.SentimentScore, tt.wantScore)
			}
		})
	}
}
