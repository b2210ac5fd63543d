package summary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// ErrUnavailable is returned for every summarizer failure.
var ErrUnavailable = errors.New("summary unavailable")

const (
	maxRetries   = 3
	initialDelay = 1 * time.Second
	systemPrompt = "You summarize a personal kanban board. Describe progress per column, " +
		"call out overdue or urgent tasks and suggest what to focus on next. Be brief."
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	delay  time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a summarizer client. An empty url leaves the client
// unconfigured and every call fails with ErrUnavailable.
func NewClient(url, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
		delay:  initialDelay,
	}
}

// Summarize submits snap and returns the summarizer's text.
func (c *Client) Summarize(ctx context.Context, snap Snapshot) (string, error) {
	if c == nil || c.url == "" {
		return "", fmt.Errorf("%w: summarizer not configured", ErrUnavailable)
	}
	board, err := sonic.MarshalString(snap)
	if err != nil {
		return "", fmt.Errorf("%w: encode snapshot: %v", ErrUnavailable, err)
	}
	body, err := sonic.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: board},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.delay << (attempt - 1)):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}
		text, retry, err := c.call(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.WithField("attempt", attempt+1).WithError(err).Warn("summarizer call failed")
		if !retry {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// call performs one request and reports whether a failure is worth retrying.
func (c *Client) call(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		msg := strings.TrimSpace(string(data))
		if sonic.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, fmt.Errorf("summarizer status %d: %s", resp.StatusCode, msg)
	}
	var out chatResponse
	if err := sonic.Unmarshal(data, &out); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", false, errors.New("no choices returned")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", false, errors.New("empty completion")
	}
	return text, false, nil
}
