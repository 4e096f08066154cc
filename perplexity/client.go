// Package perplexity is a minimal chat-completions client for the
// Perplexity API (or any OpenAI-compatible endpoint).
//
// The client is deliberately thin: one blocking call per request, a fixed
// timeout, no retries. Callers decide how to react to failures — the
// classifier swallows them, the enrichment stage propagates them.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted Perplexity endpoint.
const DefaultBaseURL = "https://api.perplexity.ai"

// ErrTimeout indicates an external call exceeded its bound.
var ErrTimeout = errors.New("perplexity: request timed out")

// APIError is a non-success response from the API: a non-2xx status or an
// error object inside a 2xx body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("perplexity: API error (status %d): %s", e.StatusCode, e.Detail)
}

// Config configures a Client.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	// APIKey is never read from YAML; it comes from the environment.
	APIKey string `yaml:"-"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = "sonar"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client calls the chat-completions endpoint with a bearer token.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a Client. A missing API key is a configuration error: there
// is no safe default for a credential, so construction fails fast.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("perplexity: API key is required")
	}
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the JSON body sent to /chat/completions.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
}

// chatResponse is the JSON response from /chat/completions.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Complete sends one chat-completion request and returns the trimmed
// content of the first choice. Temperature 0 is omitted from the request.
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("perplexity: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.cfg.Logger.Error("perplexity: request timed out", "url", url, "timeout", c.cfg.Timeout)
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		}
		return "", fmt.Errorf("perplexity: HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("perplexity: read response: %w", err)
	}

	c.cfg.Logger.Debug("perplexity: response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode/100 != 2 {
		return "", &APIError{StatusCode: resp.StatusCode, Detail: truncateDetail(string(raw))}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("perplexity: decode response: %w", err)
	}
	if cr.Error != nil {
		detail := cr.Error.Message
		if detail == "" {
			detail = cr.Error.Type
		}
		return "", &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if len(cr.Choices) == 0 {
		return "", &APIError{StatusCode: resp.StatusCode, Detail: "no choices in response"}
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncateDetail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
