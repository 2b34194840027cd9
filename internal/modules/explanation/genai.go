package explanation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured
const DefaultModelName = "gemini-2.5-flash"

const systemPrompt = "You explain a cash-flow stress risk score to a small business owner.\n" +
	"You receive ONLY a JSON list of model drivers (feature name and signed weight).\n" +
	"Rules:\n" +
	"- Write at most two sentences of plain text.\n" +
	"- Mention only features present in the JSON.\n" +
	"- Positive weights increase risk, negative weights decrease it.\n" +
	"- Do not invent amounts, dates, causes or advice.\n" +
	"- If type is \"baseline\", say that too little stress history was observed to explain the score.\n" +
	"Do NOT use Markdown.\n"

// ContentGenerator is the part of the genai client the renderer uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIConfig configures the LLM renderer
type GenAIConfig struct {
	Model   string
	Timeout time.Duration
}

// GenAIRenderer asks a Gemini model to phrase the driver list and falls back
// to the template when the call fails or the breaker is open
type GenAIRenderer struct {
	models   ContentGenerator
	model    string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	fallback *TemplateRenderer
	log      zerolog.Logger
}

// NewGenAIClient creates a Gemini API client. An empty apiKey defers to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
func NewGenAIClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// NewGenAIRenderer creates an LLM-backed renderer
func NewGenAIRenderer(models ContentGenerator, cfg GenAIConfig, log zerolog.Logger) *GenAIRenderer {
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	l := log.With().Str("component", "genai_renderer").Logger()

	settings := gobreaker.Settings{
		Name:    "genai",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &GenAIRenderer{
		models:   models,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		fallback: NewTemplateRenderer(),
		log:      l,
	}
}

// Render returns model text, or the template sentence if the model is unavailable
func (r *GenAIRenderer) Render(ctx context.Context, report domain.DriverReport) (string, error) {
	text, err := r.generate(ctx, report)
	if err != nil {
		r.log.Warn().Err(err).Msg("GenAI explanation failed, using template")
		return r.fallback.Render(ctx, report)
	}
	return text, nil
}

func (r *GenAIRenderer) generate(ctx context.Context, report domain.DriverReport) (string, error) {
	prompt, err := buildPrompt(report)
	if err != nil {
		return "", err
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		contents := []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: prompt}},
			},
		}
		resp, err := r.models.GenerateContent(ctx, r.model, contents, &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		})
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return nil, errors.New("empty response from model")
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// buildPrompt serialises the driver report; nothing else reaches the model
func buildPrompt(report domain.DriverReport) (string, error) {
	if report.Drivers == nil {
		report.Drivers = []domain.Driver{}
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode drivers: %w", err)
	}
	return string(payload), nil
}

var _ domain.ExplanationRenderer = (*GenAIRenderer)(nil)
