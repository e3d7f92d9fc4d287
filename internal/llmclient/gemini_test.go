// File: internal/llmclient/gemini_test.go
package llmclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glasswing-dev/webnav/internal/config"
)

func testLLMConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:          "test-key",
		Model:           "gemini-2.0-flash-exp",
		Endpoint:        endpoint,
		APITimeout:      5 * time.Second,
		Temperature:     0.1,
		MaxOutputTokens: 512,
	}
}

func candidateResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + mustJSON(text) + `}],"role":"model"},"finishReason":"STOP"}],` +
		`"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.APIKey = ""

	_, err := NewGeminiClient(cfg, zap.NewNop())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewGeminiClient_DefaultEndpoint(t *testing.T) {
	client, err := NewGeminiClient(testLLMConfig(""), zap.NewNop())

	require.NoError(t, err)
	assert.Equal(t,
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-exp:generateContent",
		client.endpoint)
}

func TestGenerateVision_PayloadShape(t *testing.T) {
	var captured geminiRequestPayload
	var apiKeyHeader string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKeyHeader = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(candidateResponse(`{"action":"wait"}`)))
	}))
	defer ts.Close()

	client, err := NewGeminiClient(testLLMConfig(ts.URL), zap.NewNop())
	require.NoError(t, err)

	image := []byte{0x89, 0x50, 0x4e, 0x47}
	text, err := client.GenerateVision(context.Background(), VisionRequest{
		SystemPrompt: "you control a browser",
		UserPrompt:   "Goal: find cheap flights",
		ImagePNG:     image,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"action":"wait"}`, text)
	assert.Equal(t, "test-key", apiKeyHeader)

	require.Len(t, captured.Contents, 1)
	content := captured.Contents[0]
	assert.Equal(t, "user", content.Role)
	require.Len(t, content.Parts, 2)

	require.NotNil(t, content.Parts[0].InlineData)
	assert.Equal(t, "image/png", content.Parts[0].InlineData.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), content.Parts[0].InlineData.Data)
	assert.Equal(t, "Goal: find cheap flights", content.Parts[1].Text)

	require.NotNil(t, captured.SystemInstruction)
	require.Len(t, captured.SystemInstruction.Parts, 1)
	assert.Equal(t, "you control a browser", captured.SystemInstruction.Parts[0].Text)

	assert.Equal(t, 0.1, captured.GenerationConfig.Temperature)
	assert.Equal(t, 512, captured.GenerationConfig.MaxOutputTokens)
}

func TestGenerateVision_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client, err := NewGeminiClient(testLLMConfig(ts.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateVision(context.Background(), VisionRequest{ImagePNG: []byte{1}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateVision_NoCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	client, err := NewGeminiClient(testLLMConfig(ts.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateVision(context.Background(), VisionRequest{ImagePNG: []byte{1}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGenerateVision_EmptyParts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`))
	}))
	defer ts.Close()

	client, err := NewGeminiClient(testLLMConfig(ts.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateVision(context.Background(), VisionRequest{ImagePNG: []byte{1}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

// A single request must hit the upstream exactly once regardless of outcome.
func TestGenerateVision_NoRetries(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client, err := NewGeminiClient(testLLMConfig(ts.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = client.GenerateVision(context.Background(), VisionRequest{ImagePNG: []byte{1}})

	require.Error(t, err)
	assert.Equal(t, 1, hits)
}

func TestGenerateVision_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer ts.Close()

	client, err := NewGeminiClient(testLLMConfig(ts.URL), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.GenerateVision(ctx, VisionRequest{ImagePNG: []byte{1}})

	require.Error(t, err)
}
