package genbackend

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
)

const defaultWebUITimeout = 5 * time.Minute

// WebUIClient talks to a text-generation-webui compatible API
// (/api/v1/generate and /api/v1/token-count).
type WebUIClient struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewWebUIClient creates a Client for a text-generation-webui endpoint.
func NewWebUIClient(baseURL string, timeout time.Duration, log *slog.Logger) (*WebUIClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("webui base URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = defaultWebUITimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &WebUIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "webui_client"),
	}, nil
}

type webUIResult struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

type webUIResponse struct {
	Results []webUIResult `json:"results"`
}

func (c *WebUIClient) post(ctx context.Context, path string, payload any) (*webUIResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request to %s failed (is a model loaded?): %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.log.WarnContext(ctx, "Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, path, string(snippet))
	}

	var parsed webUIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("empty results from %s", path)
	}
	return &parsed, nil
}

// Generate produces a completion for the prompt.
func (c *WebUIClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	payload := map[string]any{
		"prompt":              prompt,
		"max_new_tokens":      params.MaxNewTokens,
		"auto_max_new_tokens": params.AutoMaxNewTokens,
		"temperature":         params.Temperature,
		"top_p":               params.TopP,
		"negative_prompt":     params.NegativePrompt,
		"stopping_strings":    params.StopStrings,
	}

	resp, err := c.post(ctx, "/api/v1/generate", payload)
	if err != nil {
		c.log.ErrorContext(ctx, "Generation request failed", "error", err)
		return "", err
	}
	return resp.Results[0].Text, nil
}

// CountTokens returns the backend tokenizer's count for text.
func (c *WebUIClient) CountTokens(ctx context.Context, text string) (int, error) {
	resp, err := c.post(ctx, "/api/v1/token-count", map[string]any{"prompt": text})
	if err != nil {
		c.log.ErrorContext(ctx, "Token count request failed", "error", err)
		return 0, err
	}
	return resp.Results[0].Tokens, nil
}
