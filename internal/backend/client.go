// Package backend holds the request/response adapters for the remote
// transcription, retrieval, generation and synthesis services.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bookvoice/bookvoice/internal/reliability"
)

const statusSuccess = "success"

const (
	maxAttempts  = 3
	retryBase    = 250 * time.Millisecond
	retryCeiling = 2 * time.Second
)

// Client talks to the assistant backend over JSON POST requests. It keeps no
// state beyond the underlying http.Client.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// StatusError is a service-level failure: the call reached the backend but
// the response carried a non-success status.
type StatusError struct {
	Endpoint string
	Status   string
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned status %q: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("%s returned status %q", e.Endpoint, e.Status)
}

type statusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Text     string `json:"text"`
	Response string `json:"response"`
}

// Init loads the given corpus on the backend.
func (c *Client) Init(ctx context.Context, book string) error {
	var res statusResponse
	if err := c.postJSON(ctx, "/init", map[string]any{"book": book}, &res); err != nil {
		return err
	}
	if res.Status != statusSuccess {
		return &StatusError{Endpoint: "/init", Status: res.Status, Message: res.Message}
	}
	return nil
}

// Transcribe sends base64 PCM samples for speech recognition and returns the
// recognized text.
func (c *Client) Transcribe(ctx context.Context, audioBase64 string, sampleRate int) (string, error) {
	var res statusResponse
	req := map[string]any{"audio": audioBase64, "sampleRate": sampleRate}
	if err := c.postJSON(ctx, "/transcribe", req, &res); err != nil {
		return "", err
	}
	if res.Status != statusSuccess {
		return "", &StatusError{Endpoint: "/transcribe", Status: res.Status, Message: res.Message}
	}
	return res.Text, nil
}

// Search retrieves the topK most relevant passages for the query, in the
// service's relevance order.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	var res struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.postJSON(ctx, "/search", map[string]any{"query": query, "topK": topK}, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Generate produces the answer text for the query given retrieval context
// and conversation history.
func (c *Client) Generate(ctx context.Context, query, contextText string, results []SearchResult, history []HistoryMessage) (string, error) {
	var res statusResponse
	req := map[string]any{
		"query":         query,
		"context":       contextText,
		"searchResults": results,
		"chatHistory":   history,
	}
	if err := c.postJSON(ctx, "/generate", req, &res); err != nil {
		return "", err
	}
	if res.Status != statusSuccess {
		return "", &StatusError{Endpoint: "/generate", Status: res.Status, Message: res.Message}
	}
	return res.Response, nil
}

func (c *Client) synthesizeOnce(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &HTTPError{Endpoint: "/tts", StatusCode: res.StatusCode, Body: string(body)}
	}
	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	return audio, nil
}

// Synthesize converts one sentence to audio bytes, retrying transient
// failures. The response body is the raw audio, not JSON.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := c.withRetry(ctx, func() error {
		var callErr error
		audio, callErr = c.synthesizeOnce(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// HTTPError is a transport-level failure with an HTTP status code.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the failing status is worth retrying.
func (e *HTTPError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

// withRetry runs call up to maxAttempts times, backing off between attempts.
// Only transport failures with a retryable status are retried; service-level
// and client errors surface immediately.
func (c *Client) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(reliability.ExponentialBackoff(attempt-1, retryBase, retryCeiling))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.Retryable() {
			return err
		}
	}
	return lastErr
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	return c.withRetry(ctx, func() error {
		return c.postOnce(ctx, endpoint, payload, out)
	})
}

func (c *Client) postOnce(ctx context.Context, endpoint string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &HTTPError{Endpoint: endpoint, StatusCode: res.StatusCode, Body: string(respBody)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
