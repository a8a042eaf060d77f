package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alphaseeker/internal/logger"

	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIChatClient speaks the OpenAI-compatible /chat/completions API
// (OpenAI, DeepSeek, Qwen and most gateways).
type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// MaxRetries applies to 429/5xx only. Negative disables retries.
	MaxRetries   int
	ExtraHeaders map[string]string
	HTTPClient   *http.Client
	// backoff is overridden by tests.
	backoff func(attempt int) time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = defaultBaseURL
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *OpenAIChatClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c *OpenAIChatClient) wait(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if c.backoff != nil {
		return c.backoff(attempt)
	}
	wait := (800 * time.Millisecond) << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

// Complete sends one chat completion and returns the first choice's content.
// The returned error carries the HTTP status when there was one.
func (c *OpenAIChatClient) Complete(ctx context.Context, payload ChatPayload) (string, int, error) {
	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	messages := make([]chatMessage, 0, 2)
	if payload.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: payload.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: payload.User})
	body, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages, Temperature: payload.Temperature})
	if err != nil {
		return "", 0, err
	}

	url := c.endpoint()
	httpc := c.httpClient()
	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt == 0 {
			logger.Debugf("[provider] POST %s model=%s purpose=%s auth=%s", url, c.Model, payload.Purpose, maskKey(c.APIKey))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		for k, v := range c.ExtraHeaders {
			req.Header.Set(k, v)
		}

		resp, err := httpc.Do(req)
		if err != nil {
			return "", 0, err
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return "", resp.StatusCode, readErr
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			if err := json.Unmarshal(raw, &r); err != nil {
				return "", resp.StatusCode, fmt.Errorf("decode completion: %w", err)
			}
			if len(r.Choices) == 0 {
				return "", resp.StatusCode, errors.New("empty choices")
			}
			return r.Choices[0].Message.Content, resp.StatusCode, nil
		}

		msg := errorMessage(raw)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = errors.New(msg)
		lastStatus = resp.StatusCode
		if !retryable(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := c.wait(attempt, resp.Header.Get("Retry-After"))
		logger.Warnf("[provider] status=%d, retrying in %s (attempt %d/%d)", resp.StatusCode, wait, attempt+1, maxRetries)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", lastStatus, ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastStatus, lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func errorMessage(raw []byte) string {
	var eresp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &eresp); err != nil {
		return ""
	}
	return strings.TrimSpace(eresp.Error.Message)
}

func maskKey(key string) string {
	if key == "" {
		return "-"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// BreakerSettings controls when the provider stops calling upstream.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	Cooldown            time.Duration
}

// OpenAIModelProvider adapts OpenAIChatClient to ModelProvider behind a
// circuit breaker.
type OpenAIModelProvider struct {
	id      string
	client  *OpenAIChatClient
	breaker *gobreaker.CircuitBreaker
}

func NewOpenAIModelProvider(id string, client *OpenAIChatClient, bs BreakerSettings) *OpenAIModelProvider {
	if strings.TrimSpace(id) == "" {
		id = "openai"
	}
	if bs.ConsecutiveFailures == 0 {
		bs.ConsecutiveFailures = 5
	}
	if bs.Cooldown <= 0 {
		bs.Cooldown = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:    id,
		Timeout: bs.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("[provider] circuit %s: %s -> %s", name, from, to)
		},
	}
	return &OpenAIModelProvider{id: id, client: client, breaker: gobreaker.NewCircuitBreaker(st)}
}

func (p *OpenAIModelProvider) ID() string    { return p.id }
func (p *OpenAIModelProvider) Model() string { return p.client.Model }

func (p *OpenAIModelProvider) Call(ctx context.Context, payload ChatPayload) (string, error) {
	logger.LogLLMRequest(p.id, payload.Purpose, payload.System, payload.User, "")
	status := 0
	out, err := p.breaker.Execute(func() (interface{}, error) {
		text, code, err := p.client.Complete(ctx, payload)
		status = code
		return text, err
	})
	if err != nil {
		logger.LogLLMResponse(p.id, payload.Purpose, "", err)
		return "", &Error{Provider: p.id, Status: status, Err: err}
	}
	text, _ := out.(string)
	logger.LogLLMResponse(p.id, payload.Purpose, text, nil)
	return text, nil
}

// State reports the breaker state (closed, half-open, open).
func (p *OpenAIModelProvider) State() string {
	return p.breaker.State().String()
}
