package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	deepseek "github.com/cohesion-org/deepseek-go"

	"github.com/inkwell-ai/inkwell/shared/resilience"
)

type DeepSeekProvider struct {
	client         *deepseek.Client
	circuitBreaker *resilience.CircuitBreaker
}

func NewDeepSeekProvider(apiKey string, opts ...ProviderOption) (*DeepSeekProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}

	providerOptions := DefaultProviderOptions("deepseek")
	for _, opt := range opts {
		opt(providerOptions)
	}

	var client *deepseek.Client
	if providerOptions.URL != "" {
		client = deepseek.NewClient(apiKey, providerOptions.URL)
	} else {
		client = deepseek.NewClient(apiKey)
	}

	return &DeepSeekProvider{
		client:         client,
		circuitBreaker: providerOptions.CircuitBreaker,
	}, nil
}

func (p *DeepSeekProvider) Invoke(ctx context.Context, model, systemPrompt string, messages []*Message, opts ...InvokeOption) (*Message, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	if p.circuitBreaker != nil && !p.circuitBreaker.Allow() {
		return nil, NewProviderError("deepseek", ProviderErrorKindOverloaded, resilience.ErrCircuitOpen)
	}

	options := DefaultInvokeOptions()
	for _, opt := range opts {
		opt(options)
	}

	var (
		result *Message
		err    error
	)
	// The streaming endpoint does not surface tool calls, so requests
	// that attach tools go through the blocking endpoint and forward
	// the full completion to the stream handler in one chunk.
	if len(options.Tools) > 0 {
		result, err = p.invokeBlocking(ctx, model, systemPrompt, messages, options)
	} else {
		result, err = p.invokeStreaming(ctx, model, systemPrompt, messages, options)
	}

	if p.circuitBreaker != nil {
		p.circuitBreaker.RecordResult(err)
	}
	return result, err
}

func (p *DeepSeekProvider) invokeBlocking(ctx context.Context, model, systemPrompt string, messages []*Message, options *InvokeOptions) (*Message, error) {
	request := &deepseek.ChatCompletionRequest{
		Model:       model,
		Messages:    p.transformMessages(systemPrompt, messages),
		MaxTokens:   int(options.MaxTokens),
		Temperature: float32(options.Temperature),
		Tools:       p.transformTools(options.Tools),
	}
	if options.ResponseSchema != nil {
		request.JSONMode = true
	}

	response, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, p.parseError(err)
	}
	if len(response.Choices) == 0 {
		return nil, NewProviderError("deepseek", ProviderErrorKindUnknown,
			fmt.Errorf("completion contained no choices"))
	}

	choice := response.Choices[0]
	var content []ContentBlock
	if choice.Message.Content != "" {
		content = append(content, &TextBlock{Text: choice.Message.Content})
		if options.StreamCallback != nil {
			options.StreamCallback(ctx, choice.Message.Content)
		}
	}
	for _, call := range choice.Message.ToolCalls {
		content = append(content, &ToolCallBlock{
			ID:   call.ID,
			Tool: call.Function.Name,
			Args: json.RawMessage(call.Function.Arguments),
		})
	}

	usage := Usage{
		InputTokens:  int64(response.Usage.PromptTokens),
		OutputTokens: int64(response.Usage.CompletionTokens),
	}
	return NewAssistantMessage(content, usage), nil
}

func (p *DeepSeekProvider) invokeStreaming(ctx context.Context, model, systemPrompt string, messages []*Message, options *InvokeOptions) (*Message, error) {
	request := &deepseek.StreamChatCompletionRequest{
		Model:       model,
		Messages:    p.transformMessages(systemPrompt, messages),
		MaxTokens:   int(options.MaxTokens),
		Temperature: float32(options.Temperature),
		Stream:      true,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, p.parseError(err)
	}
	defer stream.Close()

	var (
		text  string
		usage Usage
	)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, p.parseError(recvErr)
		}
		if chunk.Usage != nil {
			usage = Usage{
				InputTokens:  int64(chunk.Usage.PromptTokens),
				OutputTokens: int64(chunk.Usage.CompletionTokens),
			}
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			text += choice.Delta.Content
			if options.StreamCallback != nil {
				options.StreamCallback(ctx, choice.Delta.Content)
			}
		}
	}

	var content []ContentBlock
	if text != "" {
		content = append(content, &TextBlock{Text: text})
	}
	return NewAssistantMessage(content, usage), nil
}

func (p *DeepSeekProvider) transformMessages(systemPrompt string, messages []*Message) []deepseek.ChatCompletionMessage {
	var result []deepseek.ChatCompletionMessage
	if systemPrompt != "" {
		result = append(result, deepseek.ChatCompletionMessage{
			Role:    deepseek.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, message := range messages {
		switch message.Role {
		case RoleAssistant:
			// The v1.2.5 message type has no tool_calls field, so the
			// calls the assistant issued are replayed as text alongside
			// its content.
			content := message.Text()
			for _, block := range message.Content {
				if call, ok := block.(*ToolCallBlock); ok {
					if content != "" {
						content += "\n"
					}
					content += fmt.Sprintf("[called tool %s (call %s) with arguments %s]",
						call.Tool, call.ID, string(call.Args))
				}
			}
			result = append(result, deepseek.ChatCompletionMessage{
				Role:    deepseek.ChatMessageRoleAssistant,
				Content: content,
			})
		default:
			for _, block := range message.Content {
				switch block := block.(type) {
				case *TextBlock:
					result = append(result, deepseek.ChatCompletionMessage{
						Role:    deepseek.ChatMessageRoleUser,
						Content: block.Text,
					})
				case *ToolResultBlock:
					// No tool role either; results go back as user
					// content tagged with the originating call id.
					result = append(result, deepseek.ChatCompletionMessage{
						Role:       deepseek.ChatMessageRoleUser,
						Content:    fmt.Sprintf("[result of tool %s (call %s)]: %s", block.Tool, block.ID, block.Result),
						ToolCallID: block.ID,
					})
				}
			}
		}
	}

	return result
}

func (p *DeepSeekProvider) transformTools(tools []ToolSpec) []deepseek.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]deepseek.Tool, len(tools))
	for i, tool := range tools {
		params := &deepseek.FunctionParameters{Type: "object"}
		if properties, ok := tool.Schema["properties"].(map[string]any); ok {
			params.Properties = properties
		}
		switch required := tool.Schema["required"].(type) {
		case []string:
			params.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					params.Required = append(params.Required, s)
				}
			}
		}
		result[i] = deepseek.Tool{
			Type: "function",
			Function: deepseek.Function{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

func (p *DeepSeekProvider) parseError(err error) *ProviderError {
	providerErr := &ProviderError{
		Provider: "deepseek",
		Kind:     ProviderErrorKindUnknown,
		Err:      err,
	}

	var apiErr *deepseek.APIError
	if errors.As(err, &apiErr) {
		providerErr.StatusCode = apiErr.StatusCode
		providerErr.Kind = KindFromStatus(apiErr.StatusCode)
	}

	return providerErr
}
