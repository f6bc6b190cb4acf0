package genbackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GeminiClient implements Client on top of the Gemini API. Prompts are sent
// as a single user turn; stop strings map to StopSequences and token counts
// come from the SDK's CountTokens call.
type GeminiClient struct {
	genaiClient *genai.Client
	log         *slog.Logger
	modelName   string
	maxRetries  int
	retryDelay  time.Duration
}

// NewGeminiClient creates a Gemini-backed generation client.
func NewGeminiClient(ctx context.Context, apiKey, modelName string, maxRetries int, retryDelay time.Duration, log *slog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = slog.Default()
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", modelName)
	return &GeminiClient{
		genaiClient: gi,
		log:         logger,
		modelName:   modelName,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
	}, nil
}

// Generate produces a completion for the prompt.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	temperature := float32(params.Temperature)
	topP := float32(params.TopP)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		TopP:        &topP,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}
	if params.MaxNewTokens > 0 && !params.AutoMaxNewTokens {
		cfg.MaxOutputTokens = int32(params.MaxNewTokens)
	}
	// Gemini accepts at most five stop sequences.
	stops := params.StopStrings
	if len(stops) > 5 {
		stops = stops[:5]
	}
	cfg.StopSequences = stops

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.generateContentWithRetries(ctx, contents, cfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini generation failed", "error", err)
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("generation blocked by safety filter: %v", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return resp.Text(), nil
}

// CountTokens returns the model tokenizer's count for text.
func (c *GeminiClient) CountTokens(ctx context.Context, text string) (int, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := c.genaiClient.Models.CountTokens(ctx, c.modelName, contents, nil)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini token count failed", "error", err)
		return 0, fmt.Errorf("gemini token count failed: %w", err)
	}
	return int(resp.TotalTokens), nil
}

func (c *GeminiClient) generateContentWithRetries(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, c.modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry",
			"attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var apiErr *genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
			if i < c.maxRetries {
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("gemini API call failed after %d retries (code %d): %w", c.maxRetries, apiErr.Code, err)
		}

		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}
