// Package llmclient provides ports.LlmClient adapters: an HTTP-based chat
// completion client, a retry wrapper, a rate-limited wrapper, and a
// scripted stand-in for tests.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/makerflow/runner/internal/core/ports"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// HTTPClient is a ports.LlmClient for any OpenAI-chat-completions-shaped
// endpoint: a single POST with a messages array, reading the reply from
// choices[0].message.content in the response. Self-hosted gateways (vLLM, Ollama's OpenAI
// shim, LiteLLM) all speak this dialect.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	body := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: err.Error(), Retryable: true}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", &coreerrors.LlmProviderError{
			Provider:  "http",
			Details:   fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw)),
			Retryable: true,
		}
	}
	if resp.StatusCode >= 400 {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: fmt.Sprintf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: "malformed response: " + err.Error()}
	}
	if parsed.Error != nil {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 {
		return "", &coreerrors.LlmProviderError{Provider: "http", Details: "no choices in response"}
	}
	return parsed.Choices[0].Message.Content, nil
}
