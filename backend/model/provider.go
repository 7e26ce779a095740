package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkwell-ai/inkwell/shared/resilience"
)

// ToolSpec is the provider-facing view of a callable tool: a name, the
// description the model reads, and a JSON schema for its parameters.
// Execution stays on the caller's side; providers only advertise.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

type InvokeOptions struct {
	Tools          []ToolSpec
	StreamCallback func(ctx context.Context, chunk string)
	MaxTokens      int64
	Temperature    float64
	ResponseSchema map[string]any
}

type InvokeOption func(*InvokeOptions)

func WithTools(tools ...ToolSpec) InvokeOption {
	return func(o *InvokeOptions) {
		o.Tools = tools
	}
}

func WithStreamHandler(handler func(ctx context.Context, chunk string)) InvokeOption {
	return func(o *InvokeOptions) {
		o.StreamCallback = handler
	}
}

func WithMaxTokens(maxTokens int64) InvokeOption {
	return func(o *InvokeOptions) {
		o.MaxTokens = maxTokens
	}
}

func WithTemperature(temperature float64) InvokeOption {
	return func(o *InvokeOptions) {
		o.Temperature = temperature
	}
}

// WithResponseSchema constrains the model to emit a single JSON object
// matching the given schema. Providers that cannot enforce a schema fall
// back to JSON-object mode; callers must still validate the result.
func WithResponseSchema(schema map[string]any) InvokeOption {
	return func(o *InvokeOptions) {
		o.ResponseSchema = schema
	}
}

func DefaultInvokeOptions() *InvokeOptions {
	return &InvokeOptions{
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

type ProviderOptions struct {
	URL            string
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

type ProviderOption func(*ProviderOptions)

func WithURL(url string) ProviderOption {
	return func(o *ProviderOptions) {
		o.URL = url
	}
}

func WithRetryConfig(retryConfig *resilience.RetryConfig) ProviderOption {
	return func(o *ProviderOptions) {
		o.RetryConfig = retryConfig
	}
}

func WithCircuitBreaker(circuitBreaker *resilience.CircuitBreaker) ProviderOption {
	return func(o *ProviderOptions) {
		o.CircuitBreaker = circuitBreaker
	}
}

func DefaultProviderOptions(name string) *ProviderOptions {
	return &ProviderOptions{
		RetryConfig:    resilience.DefaultRetryConfig(),
		CircuitBreaker: resilience.NewCircuitBreaker(name, 5, 10*time.Second),
	}
}

// Provider is a hosted chat-completion API. Invoke sends one request and
// returns the full assistant message; if a stream handler is set, text
// deltas are forwarded to it as they arrive.
type Provider interface {
	Invoke(ctx context.Context, model, systemPrompt string, messages []*Message, opts ...InvokeOption) (*Message, error)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleData      Role = "data"
)

type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
	Usage   Usage          `json:"usage"`
}

func NewUserMessage(text string) *Message {
	return &Message{
		Role:    RoleUser,
		Content: []ContentBlock{&TextBlock{Text: text}},
	}
}

func NewAssistantMessage(content []ContentBlock, usage Usage) *Message {
	return &Message{
		Role:    RoleAssistant,
		Content: content,
		Usage:   usage,
	}
}

// Text concatenates the message's text blocks.
func (m *Message) Text() string {
	var text string
	for _, block := range m.Content {
		if tb, ok := block.(*TextBlock); ok {
			text += tb.Text
		}
	}
	return text
}

// ToolCalls returns the tool-call blocks of the message in order.
func (m *Message) ToolCalls() []*ToolCallBlock {
	var calls []*ToolCallBlock
	for _, block := range m.Content {
		if tc, ok := block.(*ToolCallBlock); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

type ContentBlockType string

const (
	ContentBlockTypeText       ContentBlockType = "text"
	ContentBlockTypeToolCall   ContentBlockType = "tool_call"
	ContentBlockTypeToolResult ContentBlockType = "tool_result"
)

type ContentBlock interface {
	Type() ContentBlockType
}

type TextBlock struct {
	Text string `json:"text"`
}

func (t *TextBlock) Type() ContentBlockType {
	return ContentBlockTypeText
}

// ToolCallBlock is the canonical tool-call shape. Every provider SDK emits
// its own wire form for a requested call; the provider implementations
// normalize those at the boundary so nothing downstream touches SDK types.
type ToolCallBlock struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

func (t *ToolCallBlock) Type() ContentBlockType {
	return ContentBlockTypeToolCall
}

type ToolResultBlock struct {
	ID        string `json:"id"`
	Tool      string `json:"tool"`
	Result    string `json:"result"`
	Succeeded bool   `json:"succeeded"`
}

func (t *ToolResultBlock) Type() ContentBlockType {
	return ContentBlockTypeToolResult
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

type ProviderError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Err        error
	Kind       ProviderErrorKind
}

func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Err:      err,
	}
}

func (pe *ProviderError) Message() string {
	switch pe.Kind {
	case ProviderErrorKindInvalidRequest:
		return "Invalid request format or content"
	case ProviderErrorKindRateLimitExceeded:
		if pe.RetryAfter > 0 {
			return fmt.Sprintf("Rate limit exceeded, retry after %s", pe.RetryAfter)
		}
		return "Rate limit exceeded"
	case ProviderErrorKindOverloaded:
		return "API temporarily overloaded"
	case ProviderErrorKindInternal:
		return "Internal server error"
	case ProviderErrorKindTimeout:
		return "Request timeout"
	case ProviderErrorKindCanceled:
		return "Request canceled"
	default:
		return "Unknown error"
	}
}

func (pe *ProviderError) Retryable() bool {
	switch pe.Kind {
	case ProviderErrorKindRateLimitExceeded,
		ProviderErrorKindOverloaded,
		ProviderErrorKindInternal,
		ProviderErrorKindTimeout:
		return true
	default:
		return false
	}
}

func (pe *ProviderError) Error() string {
	if pe.Err != nil {
		return fmt.Sprintf("%s: %s: %s", pe.Provider, pe.Message(), pe.Err.Error())
	}
	return fmt.Sprintf("%s: %s", pe.Provider, pe.Message())
}

func (pe *ProviderError) Unwrap() error {
	return pe.Err
}

type ProviderErrorKind string

const (
	ProviderErrorKindInvalidRequest    ProviderErrorKind = "invalid_request"
	ProviderErrorKindRateLimitExceeded ProviderErrorKind = "rate_limit_exceeded"
	ProviderErrorKindOverloaded        ProviderErrorKind = "overloaded"
	ProviderErrorKindInternal          ProviderErrorKind = "internal"
	ProviderErrorKindTimeout           ProviderErrorKind = "timeout"
	ProviderErrorKindCanceled          ProviderErrorKind = "canceled"
	ProviderErrorKindUnknown           ProviderErrorKind = "unknown"
)

// KindFromStatus maps an HTTP status from a provider API to an error kind.
// Statuses outside the known set map to unknown rather than guessing.
func KindFromStatus(status int) ProviderErrorKind {
	switch {
	case status == 429:
		return ProviderErrorKindRateLimitExceeded
	case status == 408:
		return ProviderErrorKindTimeout
	case status == 529 || status == 503:
		return ProviderErrorKindOverloaded
	case status >= 500:
		return ProviderErrorKindInternal
	case status == 400 || status == 422:
		return ProviderErrorKindInvalidRequest
	default:
		return ProviderErrorKindUnknown
	}
}
