package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiGateway invokes Google's Gemini models through the official genai client
type GeminiGateway struct {
	cli          *genai.Client
	defaultModel string
}

// NewGeminiGateway creates a gateway for the Gemini API backend
func NewGeminiGateway(ctx context.Context, apiKey, defaultModel string) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiGateway{cli: cli, defaultModel: defaultModel}, nil
}

func (g *GeminiGateway) Name() string { return "gemini" }

// Invoke sends a single-turn prompt and concatenates the text parts of the
// first candidate.
func (g *GeminiGateway) Invoke(ctx context.Context, prompt string, cfg Config) (string, error) {
	model := cfg.Model
	if model == "" {
		model = g.defaultModel
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(cfg.Temperature)),
	}
	if cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.MaxTokens)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		gc,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.Code) {
			return "", Permanent(fmt.Errorf("gemini: %w", err))
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// isPermanentStatus reports whether an HTTP status from a provider should not
// be retried. Rate limiting is retried.
func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}
