package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// compatClient speaks the OpenAI chat completions format. Every preset
// provider is one of these with a different base URL and path prefix.
type compatClient struct {
	cfg    Config
	prefix string
	http   *http.Client
	retry  backoff
}

// NewOpenAICompat creates a provider for any OpenAI-compatible endpoint at
// cfg.BaseURL.
func NewOpenAICompat(cfg Config) Provider {
	return newCompatClient(cfg, "/v1")
}

func newCompatClient(cfg Config, prefix string) *compatClient {
	return &compatClient{
		cfg:    cfg,
		prefix: prefix,
		// The per-call deadline comes from WithTimeout. This only catches
		// connections that stall without the context firing.
		http:  &http.Client{Timeout: 120 * time.Second},
		retry: defaultBackoff,
	}
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var errNoChoices = errors.New("llm: response has no choices")

func (c *compatClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	raw, err := c.post(ctx, c.prefix+"/chat/completions", chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}
	choice := resp.Choices[0]
	if choice.Message.Content == "" && choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("llm: reply withheld by content filter (model %s)", model)
	}
	return &ChatResponse{
		Content:          choice.Message.Content,
		Model:            resp.Model,
		FinishReason:     choice.FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// backoff is the retry schedule: exponential from base, and from rateBase
// for 429 replies, stretched to honour Retry-After.
type backoff struct {
	retries  int
	base     time.Duration
	rateBase time.Duration
}

var defaultBackoff = backoff{retries: 4, base: 2 * time.Second, rateBase: 5 * time.Second}

func (b backoff) wait(attempt int, status int, retryAfter string) time.Duration {
	if status != http.StatusTooManyRequests {
		return b.base << attempt
	}
	d := b.rateBase << attempt
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		d = max(d, time.Duration(secs)*time.Second)
	}
	return d
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// statusError is a non-200 reply from the API.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("LLM API error %d: %s", e.code, e.body)
}

func (c *compatClient) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; ; attempt++ {
		raw, status, retryAfter, err := c.send(ctx, url, data)
		if err == nil {
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if status != 0 && !retryable(status) {
			return nil, err
		}
		if attempt == c.retry.retries {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt+1, lastErr)
		}

		delay := c.retry.wait(attempt, status, retryAfter)
		slog.Warn("llm: retrying request", "url", url, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// send performs one POST. status is 0 when no HTTP reply was received.
func (c *compatClient) send(ctx context.Context, url string, data []byte) (raw []byte, status int, retryAfter string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, "", fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, resp.Header.Get("Retry-After"), &statusError{code: resp.StatusCode, body: string(raw)}
	}
	return raw, resp.StatusCode, "", nil
}
