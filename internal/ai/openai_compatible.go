package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrProvider wraps every failure reaching or decoding a model provider.
	ErrProvider = errors.New("model provider request failed")
	// ErrDimensionMismatch means the provider returned vectors of an unexpected width.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type ClientOptions struct {
	// Timeout bounds a whole blocking request. Streaming requests only wait
	// this long for response headers; the body is bounded by ctx.
	Timeout    time.Duration
	MaxRetries int
	// RetryBaseDelay is the first backoff step; later steps double up to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Logger         *slog.Logger
}

type OpenAICompatibleClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
}

func NewOpenAICompatibleClient(opts ClientOptions) *OpenAICompatibleClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 8 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = opts.Timeout
	return &OpenAICompatibleClient{
		httpClient:   &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{Transport: streamTransport},
		maxRetries:   opts.MaxRetries,
		baseDelay:    opts.RetryBaseDelay,
		maxDelay:     opts.RetryMaxDelay,
		logger:       opts.Logger,
	}
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Stream              bool          `json:"stream"`
}

type providerError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func newChatRequest(cfg ChatConfig, messages []ChatMessage, stream bool) chatRequest {
	req := chatRequest{
		Model:               cfg.Model,
		Messages:            messages,
		MaxCompletionTokens: cfg.MaxTokens,
		Stream:              stream,
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		req.Temperature = &t
	}
	return req
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	resp, err := c.postJSON(ctx, c.httpClient, cfg.BaseURL, "/chat/completions", cfg.APIKey, newChatRequest(cfg, messages, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read llm response failed: %w", ErrProvider, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: llm response status %d: %s", ErrProvider, resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse llm json failed: %w", ErrProvider, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty llm choices", ErrProvider)
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. Tokens arrive on the returned channel,
// followed by exactly one StreamDone or StreamError event, after which the
// channel is closed. Cancelling ctx aborts the read and closes the channel
// without a terminal event.
func (c *OpenAICompatibleClient) Stream(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (<-chan StreamEvent, error) {
	resp, err := c.postJSON(ctx, c.streamClient, cfg.BaseURL, "/chat/completions", cfg.APIKey, newChatRequest(cfg, messages, true))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: llm stream status %d: %s", ErrProvider, resp.StatusCode, string(raw))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		send := func(ev StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		finished := false
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				finished = true
				break
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
					FinishReason *string `json:"finish_reason"`
				} `json:"choices"`
				Error *providerError `json:"error"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				send(errorEvent(fmt.Errorf("%w: llm stream error: %s", ErrProvider, chunk.Error.Message)))
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !send(StreamEvent{Type: StreamToken, Content: choice.Delta.Content}) {
						return
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					finished = true
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			send(errorEvent(fmt.Errorf("%w: scan llm stream failed: %w", ErrProvider, err)))
			return
		}
		if !finished {
			send(errorEvent(fmt.Errorf("%w: llm stream closed before completion", ErrProvider)))
			return
		}
		send(StreamEvent{Type: StreamDone})
	}()
	return events, nil
}

func errorEvent(err error) StreamEvent {
	return StreamEvent{Type: StreamError, Content: err.Error(), Err: err}
}

func (c *OpenAICompatibleClient) postJSON(ctx context.Context, client *http.Client, baseURL, path, apiKey string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal provider request failed: %w", err)
	}
	url := strings.TrimRight(baseURL, "/") + path
	build := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+apiKey)
		return req, nil
	}
	return c.doWithRetry(ctx, client, build)
}

// doWithRetry retries network failures, 429 and 5xx with exponential backoff
// and jitter. Other responses, including non-retryable errors, are returned as is.
func (c *OpenAICompatibleClient) doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Warn("retrying provider request", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrProvider, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build provider request failed: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrProvider, ctx.Err())
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: request failed after %d attempts: %w", ErrProvider, c.maxRetries+1, lastErr)
}

func (c *OpenAICompatibleClient) backoff(attempt int) time.Duration {
	d := c.baseDelay << (attempt - 1)
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d/2) + 1))
	return d + jitter
}
