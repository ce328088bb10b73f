package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/convoforge-ai/platform/pkg/common/config"
	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/common/models"
	"github.com/convoforge-ai/platform/pkg/observability/metrics"
)

// TransientError marks a failure worth retrying: rate limits, upstream
// 5xx, network timeouts. Everything else is permanent.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient generation failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient generation failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Client calls an OpenAI-compatible chat completions endpoint. Without
// an API key it returns a deterministic mock so local development and
// tests run offline.
type Client struct {
	apiKey     string
	baseURL    string
	modelName  string
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		apiKey:    cfg.GenerationAPIKey,
		baseURL:   cfg.GenerationBaseURL,
		modelName: cfg.GenerationModel,
		httpClient: &http.Client{
			Timeout: cfg.GenerationTimeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate renders a conversation from a resolved template. The system
// prompt and rendered template text go out as separate messages so the
// model sees the persona instructions apart from the scenario.
func (c *Client) Generate(ctx context.Context, template models.ResolvedTemplate) (models.GenerationResult, error) {
	if c.apiKey == "" {
		logger.Log.Debug("no generation API key configured, returning mock response")
		return mockResult(template), nil
	}

	messages := []chatMessage{}
	if template.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: template.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: template.TemplateText})

	payload := chatRequest{
		Model:       c.modelName,
		Messages:    messages,
		Temperature: 0.7,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("encoding generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return models.GenerationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.GenerationResult{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.GenerationResult{}, &TransientError{Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return models.GenerationResult{}, &TransientError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream returned %s", resp.Status),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return models.GenerationResult{}, fmt.Errorf("generation request rejected with %s: %s", resp.Status, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return models.GenerationResult{}, fmt.Errorf("decoding generation response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return models.GenerationResult{}, fmt.Errorf("generation response contained no choices")
	}

	metrics.AddGenerationTokens(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	logger.Log.WithFields(map[string]interface{}{
		"model":         c.modelName,
		"input_tokens":  parsed.Usage.PromptTokens,
		"output_tokens": parsed.Usage.CompletionTokens,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("generation call completed")

	return models.GenerationResult{
		RawResponse: parsed.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
		StopReason: parsed.Choices[0].FinishReason,
	}, nil
}

func mockResult(template models.ResolvedTemplate) models.GenerationResult {
	payload := map[string]interface{}{
		"conversation_metadata": map[string]interface{}{
			"template_id": template.TemplateID.String(),
			"tier":        template.Tier,
			"generated":   "mock",
		},
		"turns": []map[string]interface{}{
			{
				"turn_number": 1,
				"role":        "user",
				"content":     "I keep putting off looking at my retirement accounts because the numbers stress me out.",
				"emotional_context": map[string]interface{}{
					"primary_emotion": "anxiety",
					"intensity":       0.7,
				},
			},
			{
				"turn_number": 2,
				"role":        "advisor",
				"content":     "That avoidance is really common, and it usually means the stakes feel high to you. Let's look at one number together, just one, and see what it actually tells us.",
				"emotional_context": map[string]interface{}{
					"primary_emotion": "reassurance",
					"intensity":       0.4,
				},
			},
		},
	}
	raw, _ := json.Marshal(payload)
	return models.GenerationResult{
		RawResponse: string(raw),
		Usage:       models.TokenUsage{InputTokens: 350, OutputTokens: 220},
		StopReason:  "stop",
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
