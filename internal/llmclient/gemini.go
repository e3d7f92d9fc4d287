// File: internal/llmclient/gemini.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/glasswing-dev/webnav/internal/config"
)

// VisionRequest is one single-turn request against the vision model: one
// image, one text prompt, and a fixed system instruction.
type VisionRequest struct {
	SystemPrompt string
	UserPrompt   string
	ImagePNG     []byte
}

// Client is the vision-model collaborator used by the structured decision
// protocol. Implementations return the raw text of the model's reply.
type Client interface {
	GenerateVision(ctx context.Context, req VisionRequest) (string, error)
}

// -- Gemini API Request/Response Structures (Internal to this file) --

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GeminiClient implements Client against the Gemini generateContent REST API.
//
// It deliberately performs no retries: the decision layer treats transport
// failures as non-transient and surfaces them as a terminal fail action.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	cfg        config.LLMConfig
	limiter    *rate.Limiter
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent",
			cfg.Model,
		)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger:  logger.Named("llmclient.gemini"),
		limiter: limiter,
	}, nil
}

// GenerateVision sends one image+text turn to the Gemini API and returns the
// raw text of the first candidate.
func (c *GeminiClient) GenerateVision(ctx context.Context, req VisionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", respBody),
		)
		return "", fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, respBody)
	}

	var payload geminiResponsePayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("failed to decode response payload: %w", err)
	}
	if len(payload.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}

	candidate := payload.Candidates[0]
	if len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)
	}

	c.logger.Debug("Vision generation complete",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("prompt_tokens", payload.UsageMetadata.PromptTokenCount),
		zap.Int("completion_tokens", payload.UsageMetadata.CandidatesTokenCount),
	)

	return candidate.Content.Parts[0].Text, nil
}

func (c *GeminiClient) buildRequestPayload(req VisionRequest) geminiRequestPayload {
	return geminiRequestPayload{
		Contents: []geminiContent{
			{
				Role: "user",
				Parts: []geminiPart{
					{InlineData: &geminiBlob{
						MimeType: "image/png",
						Data:     base64.StdEncoding.EncodeToString(req.ImagePNG),
					}},
					{Text: req.UserPrompt},
				},
			},
		},
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.cfg.Temperature,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
		},
	}
}
