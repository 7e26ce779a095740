package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/inkwell-ai/inkwell/shared/resilience"
)

type OpenAIProvider struct {
	client         *openai.Client
	circuitBreaker *resilience.CircuitBreaker
}

func NewOpenAIProvider(apiKey string, opts ...ProviderOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	providerOptions := DefaultProviderOptions("openai")
	for _, opt := range opts {
		opt(providerOptions)
	}

	clientOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if providerOptions.URL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(providerOptions.URL))
	}

	return &OpenAIProvider{
		client:         openai.NewClient(clientOptions...),
		circuitBreaker: providerOptions.CircuitBreaker,
	}, nil
}

func (p *OpenAIProvider) Invoke(ctx context.Context, model, systemPrompt string, messages []*Message, opts ...InvokeOption) (*Message, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	if p.circuitBreaker != nil && !p.circuitBreaker.Allow() {
		return nil, NewProviderError("openai", ProviderErrorKindOverloaded, resilience.ErrCircuitOpen)
	}

	options := DefaultInvokeOptions()
	for _, opt := range opts {
		opt(options)
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.F(model),
		Messages:    openai.F(p.transformMessages(systemPrompt, messages)),
		MaxTokens:   openai.Int(options.MaxTokens),
		Temperature: openai.Float(options.Temperature),
	}

	if len(options.Tools) > 0 {
		params.Tools = openai.F(p.transformTools(options.Tools))
	}

	if options.ResponseSchema != nil {
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			shared.ResponseFormatJSONSchemaParam{
				Type: openai.F(shared.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   openai.F("response"),
					Schema: openai.F[any](options.ResponseSchema),
					Strict: openai.F(true),
				}),
			},
		)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" && options.StreamCallback != nil {
				options.StreamCallback(ctx, delta)
			}
		}
	}

	if err := stream.Err(); err != nil {
		providerErr := p.parseError(err)
		if p.circuitBreaker != nil {
			p.circuitBreaker.RecordResult(providerErr)
		}
		return nil, providerErr
	}
	if p.circuitBreaker != nil {
		p.circuitBreaker.RecordResult(nil)
	}

	if len(acc.Choices) == 0 {
		return nil, NewProviderError("openai", ProviderErrorKindUnknown, fmt.Errorf("response contained no choices"))
	}

	var content []ContentBlock
	message := acc.Choices[0].Message
	if message.Content != "" {
		content = append(content, &TextBlock{Text: message.Content})
	}
	for _, call := range message.ToolCalls {
		content = append(content, &ToolCallBlock{
			ID:   call.ID,
			Tool: call.Function.Name,
			Args: []byte(call.Function.Arguments),
		})
	}

	return NewAssistantMessage(content, Usage{
		InputTokens:  acc.Usage.PromptTokens,
		OutputTokens: acc.Usage.CompletionTokens,
	}), nil
}

// Embed generates one embedding vector per input chunk using
// text-embedding-3-small.
func (p *OpenAIProvider) Embed(ctx context.Context, chunks []string) ([][]float64, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("at least one chunk is required")
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.F(openai.EmbeddingModelTextEmbedding3Small),
		Input: openai.F[openai.EmbeddingNewParamsInputUnion](openai.EmbeddingNewParamsInputArrayOfStrings(chunks)),
	})
	if err != nil {
		return nil, p.parseError(err)
	}

	if len(resp.Data) != len(chunks) {
		return nil, NewProviderError("openai", ProviderErrorKindUnknown,
			fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(resp.Data)))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}

	return vectors, nil
}

func (p *OpenAIProvider) transformMessages(systemPrompt string, messages []*Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}

	for _, message := range messages {
		switch message.Role {
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{
				Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
			}

			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, block := range message.Content {
				switch block := block.(type) {
				case *TextBlock:
					assistant.Content = openai.F([]openai.ChatCompletionAssistantMessageParamContentUnion{
						openai.TextPart(block.Text),
					})
				case *ToolCallBlock:
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID:   openai.F(block.ID),
						Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
						Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      openai.F(block.Tool),
							Arguments: openai.F(string(block.Args)),
						}),
					})
				}
			}
			if len(toolCalls) > 0 {
				assistant.ToolCalls = openai.F(toolCalls)
			}
			out = append(out, assistant)
		default:
			for _, block := range message.Content {
				switch block := block.(type) {
				case *TextBlock:
					out = append(out, openai.UserMessage(block.Text))
				case *ToolResultBlock:
					out = append(out, openai.ToolMessage(block.ID, block.Result))
				}
			}
		}
	}

	return out
}

func (p *OpenAIProvider) transformTools(tools []ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(shared.FunctionDefinitionParam{
				Name:        openai.F(tool.Name),
				Description: openai.F(tool.Description),
				Parameters:  openai.F(shared.FunctionParameters(tool.Schema)),
			}),
		}
	}
	return out
}

func (p *OpenAIProvider) parseError(err error) *ProviderError {
	providerErr := &ProviderError{
		Provider: "openai",
		Kind:     ProviderErrorKindUnknown,
		Err:      err,
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		providerErr.StatusCode = apiErr.StatusCode
		providerErr.Kind = KindFromStatus(apiErr.StatusCode)

		if apiErr.Response != nil {
			if retryAfter := apiErr.Response.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, convErr := strconv.Atoi(retryAfter); convErr == nil {
					providerErr.RetryAfter = time.Duration(seconds) * time.Second
				}
			}
		}
	}

	return providerErr
}
