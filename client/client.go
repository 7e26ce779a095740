// Package client is the Go counterpart of the web front end's chat
// glue: it submits turns, decodes the data-stream frames, simulates
// tool progress, and retries stream failures with the shared
// classification policy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/inkwell-ai/inkwell/backend/chat"
	"github.com/inkwell-ai/inkwell/backend/composer"
	"github.com/inkwell-ai/inkwell/backend/model"
	"github.com/inkwell-ai/inkwell/backend/progress"
	"github.com/inkwell-ai/inkwell/backend/prompt"
	"github.com/inkwell-ai/inkwell/backend/streamerr"
)

// ErrSuperseded marks a request replaced by a newer submission. Its
// frames are discarded, never merged. The "aborted" wording keeps the
// classifier from retrying a request that can no longer win.
var ErrSuperseded = errors.New("request aborted: superseded by newer request")

// ChatRequest is one user turn as submitted by the client.
type ChatRequest struct {
	Tool     string                     `json:"tool"`
	Messages []prompt.TranscriptMessage `json:"messages"`
	Model    string                     `json:"model"`
	Notes    string                     `json:"notes,omitempty"`
	Image    string                     `json:"image,omitempty"`
}

// Handlers receives decoded stream frames. Nil callbacks are skipped.
type Handlers struct {
	OnText       func(delta string)
	OnToolCall   func(call chat.ToolCallFrame)
	OnToolResult func(result chat.ToolResultFrame)
	OnFinish     func(finish chat.FinishFrame)
}

type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	tracker    *progress.Tracker

	// requestCount tags each submission; a mismatch means the request
	// was superseded.
	requestCount atomic.Uint64
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithMaxRetries(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryBaseDelay scales the retry backoff schedule.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

func WithTracker(tracker *progress.Tracker) Option {
	return func(c *Client) {
		c.tracker = tracker
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 5 * time.Minute},
		maxRetries: streamerr.DefaultMaxRetries,
		tracker:    progress.NewTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Progress exposes the tool progress tracker driven by the stream.
func (c *Client) Progress() *progress.Tracker {
	return c.tracker
}

// Chat submits one turn and decodes the response stream into the
// handlers. Retryable failures are retried with exponential backoff; a
// newer Chat call supersedes this one and its remaining frames are
// dropped.
func (c *Client) Chat(ctx context.Context, req ChatRequest, handlers Handlers) error {
	requestID := c.requestCount.Add(1)

	var retryOpts []streamerr.DoOption
	if c.retryDelay > 0 {
		retryOpts = append(retryOpts, streamerr.WithBaseDelay(c.retryDelay))
	}
	err := streamerr.Do(ctx, func(ctx context.Context) error {
		if c.requestCount.Load() != requestID {
			return ErrSuperseded
		}
		return c.streamChat(ctx, requestID, req, handlers)
	}, c.maxRetries, retryOpts...)
	if err == nil {
		return nil
	}

	c.tracker.Stop()

	var streamErr *streamerr.StreamError
	if errors.As(err, &streamErr) {
		c.reportStreamError(streamErr.Classification, streamErr.Err)
	}
	return err
}

func (c *Client) streamChat(ctx context.Context, requestID uint64, req ChatRequest, handlers Handlers) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode chat request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build chat request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return &model.ProviderError{
			Provider:   "api",
			StatusCode: response.StatusCode,
			Kind:       model.KindFromStatus(response.StatusCode),
			Err:        fmt.Errorf("chat endpoint returned %d: %s", response.StatusCode, strings.TrimSpace(string(payload))),
		}
	}

	decoder := chat.NewDecoder(response.Body)
	for {
		frame, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.requestCount.Load() != requestID {
			return ErrSuperseded
		}

		switch {
		case frame.Text != nil:
			if handlers.OnText != nil {
				handlers.OnText(*frame.Text)
			}
		case frame.ToolCall != nil:
			c.tracker.Start(frame.ToolCall.ToolName, string(frame.ToolCall.Args))
			if handlers.OnToolCall != nil {
				handlers.OnToolCall(*frame.ToolCall)
			}
		case frame.ToolResult != nil:
			c.tracker.Complete(progress.StatusCompleted, "")
			if handlers.OnToolResult != nil {
				handlers.OnToolResult(*frame.ToolResult)
			}
		case frame.Error != nil:
			c.tracker.Complete(progress.StatusError, *frame.Error)
			return fmt.Errorf("data stream error frame: %s", *frame.Error)
		case frame.Finish != nil:
			if handlers.OnFinish != nil {
				handlers.OnFinish(*frame.Finish)
			}
		}
	}
}

// Compose runs one structured composer turn.
func (c *Client) Compose(ctx context.Context, req ComposeRequest) (*composer.Result, error) {
	var result composer.Result
	if err := c.postJSON(ctx, "/api/composer", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type ComposeRequest struct {
	Messages   []prompt.TranscriptMessage `json:"messages"`
	Prompt     string                     `json:"prompt"`
	EditorHTML string                     `json:"editorHTML"`
	Model      string                     `json:"model"`
}

type EmbedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Embed chunks, embeds and stores text on the server.
func (c *Client) Embed(ctx context.Context, text string) (*EmbedResponse, error) {
	var result EmbedResponse
	if err := c.postJSON(ctx, "/api/embed", map[string]string{"text": text}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s returned %d: %s", path, response.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s returned %d", path, response.StatusCode)
	}

	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// reportStreamError forwards stream-processing failures to the server
// log endpoint, best effort, so operators can join both sides through
// the error id.
func (c *Client) reportStreamError(classification streamerr.Classification, cause error) {
	if classification.Type != streamerr.TypeStreamProcessing && classification.Type != streamerr.TypeJSONParsing {
		return
	}

	report := map[string]string{
		"errorType": string(classification.Type),
		"errorId":   classification.ErrorID,
		"message":   cause.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(report)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/log-client-error", bytes.NewReader(body))
	if err != nil {
		return
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return
	}
	response.Body.Close()
}
