package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/inkwell-ai/inkwell/shared/resilience"
)

const visionModel = anthropic.ModelClaude3_5SonnetLatest

// AnthropicProvider serves image analysis only. It is not registered as
// a chat binding; the whiteboard tool calls it directly.
type AnthropicProvider struct {
	client         *anthropic.Client
	circuitBreaker *resilience.CircuitBreaker
}

func NewAnthropicProvider(apiKey string, opts ...ProviderOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	providerOptions := DefaultProviderOptions("anthropic")
	for _, opt := range opts {
		opt(providerOptions)
	}

	clientOptions := []option.RequestOption{option.WithAPIKey(apiKey)}
	if providerOptions.URL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(providerOptions.URL))
	}

	return &AnthropicProvider{
		client:         anthropic.NewClient(clientOptions...),
		circuitBreaker: providerOptions.CircuitBreaker,
	}, nil
}

// AnalyzeImage describes a base64-encoded image according to the prompt.
// mediaType is the image MIME type, e.g. "image/png".
func (p *AnthropicProvider) AnalyzeImage(ctx context.Context, mediaType, imageData, prompt string) (string, error) {
	if imageData == "" {
		return "", fmt.Errorf("image data is required")
	}
	if p.circuitBreaker != nil && !p.circuitBreaker.Allow() {
		return "", NewProviderError("anthropic", ProviderErrorKindOverloaded, resilience.ErrCircuitOpen)
	}

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(string(visionModel)),
		MaxTokens: anthropic.F(int64(1024)),
		Messages: anthropic.F([]anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, imageData),
				anthropic.NewTextBlock(prompt),
			),
		}),
	})
	if p.circuitBreaker != nil {
		p.circuitBreaker.RecordResult(err)
	}
	if err != nil {
		return "", p.parseError(err)
	}

	var text string
	for _, block := range response.Content {
		if textBlock, ok := block.AsUnion().(anthropic.TextBlock); ok {
			text += textBlock.Text
		}
	}
	if text == "" {
		return "", NewProviderError("anthropic", ProviderErrorKindUnknown,
			fmt.Errorf("vision response contained no text"))
	}
	return text, nil
}

func (p *AnthropicProvider) parseError(err error) *ProviderError {
	providerErr := &ProviderError{
		Provider: "anthropic",
		Kind:     ProviderErrorKindUnknown,
		Err:      err,
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr.StatusCode = apiErr.StatusCode
		providerErr.Kind = KindFromStatus(apiErr.StatusCode)
	}

	return providerErr
}
