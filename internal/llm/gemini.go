// Package llm talks to the hosted language model used for answers and speech
// transcription.
package llm

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Config holds the model settings.
type Config struct {
	APIKey       string
	Model        string
	Temperature  float32
	TopK         int32
	TopP         float32
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

const transcribePrompt = "Transcribe this audio recording exactly. Reply with the spoken words only."

type generateFunc func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)

// GeminiClient implements Generator and Transcriber on the Gemini API.
type GeminiClient struct {
	client   *genai.Client
	generate generateFunc
	cfg      Config
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGeminiClient creates a client for cfg.Model. The API key is required.
func NewGeminiClient(ctx context.Context, cfg Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("LLM API key is not configured (set GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	cfg = withDefaults(cfg)
	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(cfg.Temperature)
	if cfg.TopK > 0 {
		model.SetTopK(cfg.TopK)
	}
	if cfg.TopP > 0 {
		model.SetTopP(cfg.TopP)
	}

	g := newClient(model.GenerateContent, cfg, logger, metricsCollector)
	g.client = client
	return g, nil
}

func newClient(fn generateFunc, cfg Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *GeminiClient {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &GeminiClient{
		generate: fn,
		cfg:      withDefaults(cfg),
		logger:   logger,
		metrics:  metricsCollector,
		sleep:    sleepCtx,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 20 * time.Second
	}
	return cfg
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string { return g.cfg.Model }

// Generate sends prompt and returns the trimmed answer text.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return g.call(ctx, "generate", genai.Text(prompt))
}

// Transcribe sends inline audio and returns the transcript.
func (g *GeminiClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio provided")
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return g.call(ctx, "transcribe", genai.Blob{MIMEType: mimeType, Data: audio}, genai.Text(transcribePrompt))
}

func (g *GeminiClient) call(ctx context.Context, op string, parts ...genai.Part) (string, error) {
	start := time.Now()
	backoff := g.cfg.RetryBackoff
	var lastErr error

	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		text, err := g.once(ctx, parts, attempt)
		if err == nil {
			g.record("success", start)
			g.logger.Debug(ctx, "[LLM] Response received", logging.Fields{
				"operation": op,
				"model":     g.cfg.Model,
				"attempt":   attempt,
				"chars":     len(text),
			})
			return text, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == g.cfg.MaxRetries {
			break
		}

		wait := withJitter(backoff)
		if wait > g.cfg.MaxBackoff {
			wait = g.cfg.MaxBackoff
		}
		g.logger.Warn(ctx, "[LLM] Request failed, retrying", logging.Fields{
			"operation": op,
			"attempt":   attempt,
			"wait_ms":   wait.Milliseconds(),
			"error":     err.Error(),
		})
		if g.metrics != nil {
			g.metrics.LLMRetriesTotal.Inc()
		}
		if err := g.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
	}

	g.record("error", start)
	return "", fmt.Errorf("failed to %s with %s: %w", op, g.cfg.Model, lastErr)
}

func (g *GeminiClient) once(ctx context.Context, parts []genai.Part, attempt int) (string, error) {
	resp, err := g.generate(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return "", &BlockedError{Reason: resp.PromptFeedback.BlockReason.String()}
		}
		return "", &EmptyResponseError{Attempts: attempt}
	}
	if fr := resp.Candidates[0].FinishReason; fr == genai.FinishReasonSafety {
		return "", &BlockedError{Reason: fr.String()}
	}
	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", &EmptyResponseError{Attempts: attempt}
	}
	return text, nil
}

func (g *GeminiClient) record(outcome string, start time.Time) {
	if g.metrics != nil {
		g.metrics.RecordLLMRequest(outcome, time.Since(start))
	}
}

// Close releases the underlying client.
func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}

// withJitter returns d with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	out := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if out <= 0 {
		return d
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
