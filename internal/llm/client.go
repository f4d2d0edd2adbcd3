package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable is returned when no usable API credentials are configured.
var ErrUnavailable = errors.New("llm client not available: API key not configured")

// Request defaults matching the original handler.
const (
	defaultMaxTokens   = 1500
	defaultTemperature = 0.7
	defaultTopP        = 0.95

	requestTimeout = 120 * time.Second
	maxRetryTime   = 30 * time.Second
)

// Options control a single completion request. Zero values fall back to
// the package defaults; an empty Model uses the client's configured default.
type Options struct {
	SystemMessage string
	Model         string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	N             int
}

// Sender is the model-call capability the engine components depend on. A
// failure (non-nil error) is always distinguishable from a successful but
// empty completion.
type Sender interface {
	Available() bool
	Send(ctx context.Context, prompt string, opts Options) ([]string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	limiter      *RateLimiter
}

// NewClient creates a client for the given endpoint. An empty apiKey yields
// a constructed but unavailable client; callers must check Available.
func NewClient(apiKey, baseURL, defaultModel string, rpm int) *Client {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: NewRateLimiter(rpm),
	}
}

// Available reports whether the client can make model calls.
func (c *Client) Available() bool {
	return c != nil && c.apiKey != ""
}

// Close stops the client's rate limiter.
func (c *Client) Close() {
	c.limiter.Close()
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
	N           int       `json:"n"`
	Stream      bool      `json:"stream"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents a chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice represents a response choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.status, e.body)
}

// Send posts a completion request and returns the trimmed choice contents.
// Transient transport failures (connectivity, 429, 5xx) are retried with
// exponential backoff for up to maxRetryTime; all failure sub-cases collapse
// to a single error at this boundary.
func (c *Client) Send(ctx context.Context, prompt string, opts Options) ([]string, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	model := opts.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	topP := opts.TopP
	if topP == 0 {
		topP = defaultTopP
	}
	n := opts.N
	if n <= 0 {
		n = 1
	}

	var messages []Message
	if opts.SystemMessage != "" {
		messages = append(messages, Message{Role: "system", Content: opts.SystemMessage})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	reqBody := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		N:           n,
		Stream:      false,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var replies []string
	operation := func() error {
		replies, err = c.do(ctx, jsonData)
		if err != nil {
			if isTransient(err) {
				c.limiter.RecordError()
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxRetryTime
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	c.limiter.RecordSuccess()
	return replies, nil
}

func (c *Client) do(ctx context.Context, jsonData []byte) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: string(body)}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	replies := make([]string, 0, len(chatResp.Choices))
	for _, choice := range chatResp.Choices {
		replies = append(replies, strings.TrimSpace(choice.Message.Content))
	}
	return replies, nil
}

// isTransient reports whether the error is worth retrying. Rate limits,
// server-side failures and network-level errors are; auth and other client
// errors are not, and neither is a malformed response body, which a resend
// will not repair.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
