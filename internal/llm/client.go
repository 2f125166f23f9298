// Package llm is a minimal client for OpenAI-compatible chat completion
// servers used to turn an evidence bundle into a prose answer.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jensjohansen/codeknowl/internal/errkind"
	"github.com/jensjohansen/codeknowl/internal/logging"
	"github.com/jensjohansen/codeknowl/internal/metrics"
)

// Defaults applied by the config layer.
const (
	DefaultTimeout             = 60 * time.Second
	DefaultChatCompletionsPath = "/api/v1/chat/completions"
	DefaultModelsPath          = "/api/v1/models"
	DefaultTemperature         = 0.2
)

// maxErrorBody bounds how much of a failed response is echoed in errors.
const maxErrorBody = 512

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	BaseURL             string        `mapstructure:"base_url"`
	Model               string        `mapstructure:"model"`
	APIKey              string        `mapstructure:"api_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ChatCompletionsPath string        `mapstructure:"chat_completions_path"`
	ModelsPath          string        `mapstructure:"models_path"`
	Temperature         float64       `mapstructure:"temperature"`
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errkind.New(errkind.InvalidInput, "llm config", "base_url is required (CODEKNOWL_LLM_BASE_URL)")
	}
	if strings.TrimSpace(c.Model) == "" {
		return errkind.New(errkind.InvalidInput, "llm config", "model is required (CODEKNOWL_LLM_MODEL)")
	}
	return nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client talks to one endpoint. It is safe for concurrent use.
//
// Requests are never retried: a transport error, a non-2xx status or a
// response without usable text is returned as an UpstreamFailure.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

// NewClient validates cfg and creates a Client. A nil logger discards.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChatCompletionsPath == "" {
		cfg.ChatCompletionsPath = DefaultChatCompletionsPath
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = DefaultModelsPath
	}
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Generate sends a system and user prompt and returns the first choice's
// message content.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	answer, err := c.chat(ctx, systemPrompt, userPrompt)
	metrics.RecordGenerator(time.Since(start), err)
	if err != nil {
		c.logger.Warn("llm: chat failed", "model", c.cfg.Model, "error", err)
		return "", err
	}
	c.logger.Debug("llm: chat done", "model", c.cfg.Model, "duration", time.Since(start), "answer_len", len(answer))
	return answer, nil
}

func (c *Client) chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: marshaling request: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, c.cfg.ChatCompletionsPath, body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", errkind.Wrap(errkind.UpstreamFailure, "llm chat", fmt.Errorf("parsing response JSON: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", errkind.New(errkind.UpstreamFailure, "llm chat", "response missing choices")
	}
	content := resp.Choices[0].Message.Content
	if content == nil || strings.TrimSpace(*content) == "" {
		return "", errkind.New(errkind.UpstreamFailure, "llm chat", "response missing message content")
	}
	return *content, nil
}

// ListModels returns the entries of the endpoint's model list. A payload
// whose data field is not a list yields an empty result.
func (c *Client) ListModels(ctx context.Context) ([]map[string]any, error) {
	data, err := c.do(ctx, http.MethodGet, c.cfg.ModelsPath, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errkind.Wrap(errkind.UpstreamFailure, "llm list models", fmt.Errorf("parsing response JSON: %w", err))
	}

	var entries []any
	if err := json.Unmarshal(resp.Data, &entries); err != nil {
		return []map[string]any{}, nil
	}
	models := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if m, ok := e.(map[string]any); ok {
			models = append(models, m)
		}
	}
	return models, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	op := "llm " + strings.ToLower(method) + " " + path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, errkind.Wrap(errkind.UpstreamFailure, op, fmt.Errorf("creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.UpstreamFailure, op, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.UpstreamFailure, op, fmt.Errorf("reading response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errkind.Errorf(errkind.UpstreamFailure, op, "status %d: %s", resp.StatusCode, truncate(string(data), maxErrorBody))
	}
	return data, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
