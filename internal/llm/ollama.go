package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGateway talks to a local Ollama server's /api/generate endpoint
type OllamaGateway struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

// NewOllamaGateway creates a gateway for the Ollama server at baseURL
func NewOllamaGateway(baseURL, defaultModel string) *OllamaGateway {
	return &OllamaGateway{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		// Per-call deadlines come from the Timeout middleware via ctx.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (o *OllamaGateway) Name() string { return "ollama" }

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Invoke posts a non-streaming generate request
func (o *OllamaGateway) Invoke(ctx context.Context, prompt string, cfg Config) (string, error) {
	model := cfg.Model
	if model == "" {
		model = o.defaultModel
	}
	body, err := json.Marshal(ollamaRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
		},
	})
	if err != nil {
		return "", Permanent(fmt.Errorf("ollama: encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", Permanent(fmt.Errorf("ollama: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if isPermanentStatus(resp.StatusCode) {
			return "", Permanent(err)
		}
		return "", err
	}

	var out ollamaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", ErrEmptyResponse
	}
	return out.Response, nil
}

// Ping checks that the Ollama server answers
func (o *OllamaGateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return nil
}
