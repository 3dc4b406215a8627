package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/tcynic/resonant-sub007/internal/analysis/metrics"
	"github.com/tcynic/resonant-sub007/internal/core/domain"
)

// Per-million-token rates used when no fixed cost per call is configured.
const (
	inputTokenRate  = 0.80 / 1e6
	outputTokenRate = 4.00 / 1e6
)

const systemPrompt = `You analyze personal journal entries about relationships.
Respond with a single JSON object and nothing else:
{"sentiment_score": <float -1.0 to 1.0>, "confidence": <float 0.0 to 1.0>, "emotional_keywords": [<strings>]}`

// Config holds Anthropic client settings.
type Config struct {
	APIKey         string
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration
	CostPerCall    float64 // 0 = derive from token usage
}

// AnthropicAnalyzer implements Analyzer against the Anthropic Messages API.
type AnthropicAnalyzer struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropicAnalyzer creates an analyzer backed by the Anthropic API.
func NewAnthropicAnalyzer(cfg Config) *AnthropicAnalyzer {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &AnthropicAnalyzer{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Analyze sends the entry to the API and parses the structured result.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, entry Entry) (*domain.AIResult, error) {
	if strings.TrimSpace(entry.Content) == "" {
		return nil, fmt.Errorf("validation failed: entry content is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	userPrompt := entry.Content
	if entry.Mood > 0 {
		userPrompt = fmt.Sprintf("Self-reported mood: %d/10\n\n%s", entry.Mood, entry.Content)
	}

	start := time.Now()
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	elapsed := time.Since(start)
	if err != nil {
		metrics.InferenceLatency.WithLabelValues("anthropic", "error").Observe(elapsed.Seconds())
		return nil, fmt.Errorf("inference call failed: %w", err)
	}
	metrics.InferenceLatency.WithLabelValues("anthropic", "ok").Observe(elapsed.Seconds())

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("inference response contained no text content")
	}

	parsed, err := parseAnalysis(text)
	if err != nil {
		return nil, err
	}

	cost := a.cfg.CostPerCall
	if cost == 0 {
		cost = float64(message.Usage.InputTokens)*inputTokenRate +
			float64(message.Usage.OutputTokens)*outputTokenRate
	}

	return &domain.AIResult{
		ID:                uuid.NewString(),
		EntryID:           entry.EntryID,
		SentimentScore:    parsed.SentimentScore,
		Confidence:        parsed.Confidence,
		EmotionalKeywords: parsed.EmotionalKeywords,
		ProcessingTime:    elapsed,
		APICost:           cost,
		CreatedAt:         time.Now(),
	}, nil
}

type analysisPayload struct {
	SentimentScore    float64  `json:"sentiment_score"`
	Confidence        float64  `json:"confidence"`
	EmotionalKeywords []string `json:"emotional_keywords"`
}

// parseAnalysis extracts the JSON object from the response text. Models
// occasionally wrap the object in prose or a code fence, so it scans for the
// outermost braces instead of unmarshaling the raw text.
func parseAnalysis(text string) (*analysisPayload, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("validation failed: no JSON object in inference response")
	}

	var out analysisPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("validation failed: malformed inference response: %w", err)
	}
	if out.SentimentScore < -1 || out.SentimentScore > 1 {
		return nil, fmt.Errorf("validation failed: sentiment_score %v out of range", out.SentimentScore)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("validation failed: confidence %v out of range", out.Confidence)
	}
	return &out, nil
}
