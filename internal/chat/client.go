// Package chat talks to an OpenAI-compatible chat completion API and keeps
// the running conversation that gives the assistant its memory of the
// session.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("chat API key not set")

// FallbackReply is spoken when every retry against the completion API
// fails, so the avatar degrades gracefully instead of going mute.
const FallbackReply = "Sorry, I'm having trouble connecting to my brain. Please check your internet connection and try again."

// Config holds chat completion settings.
type Config struct {
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	Model        string        `json:"model"`
	Temperature  float64       `json:"temperature"`
	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Client is an OpenAI-compatible chat completion client with bounded
// retries.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	temperature  float64
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewClient creates a chat client. The API key comes from cfg or the
// OPENAI_API_KEY environment variable.
func NewClient(logger zerolog.Logger, cfg Config) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       apiKey,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger.With().Str("component", "chat").Logger(),
	}
}

// IsAvailable reports whether the client has an API key.
func (c *Client) IsAvailable() bool {
	return c.apiKey != ""
}

// Complete sends the message list and returns the assistant's reply,
// retrying transient failures with a fixed backoff. After the last retry
// it gives up and returns the error; callers decide whether to speak
// FallbackReply.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if !c.IsAvailable() {
		return "", ErrNoAPIKey
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		reply, err := c.complete(ctx, messages)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxRetries", c.maxRetries).
			Msg("chat completion failed")

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retryBackoff):
		}
	}
	return "", lastErr
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	c.logger.Debug().
		Int("promptTokens", parsed.Usage.PromptTokens).
		Int("completionTokens", parsed.Usage.CompletionTokens).
		Msg("chat completion ok")

	return parsed.Choices[0].Message.Content, nil
}
