package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/inkwell-ai/inkwell/shared/resilience"
)

type GeminiProvider struct {
	client         *genai.Client
	circuitBreaker *resilience.CircuitBreaker
}

func NewGeminiProvider(apiKey string, opts ...ProviderOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	providerOptions := DefaultProviderOptions("gemini")
	for _, opt := range opts {
		opt(providerOptions)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if providerOptions.URL != "" {
		clientConfig.HTTPOptions.BaseURL = providerOptions.URL
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:         client,
		circuitBreaker: providerOptions.CircuitBreaker,
	}, nil
}

func (p *GeminiProvider) Invoke(ctx context.Context, model, systemPrompt string, messages []*Message, opts ...InvokeOption) (*Message, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}
	if p.circuitBreaker != nil && !p.circuitBreaker.Allow() {
		return nil, NewProviderError("gemini", ProviderErrorKindOverloaded, resilience.ErrCircuitOpen)
	}

	options := DefaultInvokeOptions()
	for _, opt := range opts {
		opt(options)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(options.Temperature)),
		MaxOutputTokens: int32(options.MaxTokens),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if len(options.Tools) > 0 {
		config.Tools = p.transformTools(options.Tools)
	}
	if options.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGeminiSchema(options.ResponseSchema)
	}

	contents := p.transformMessages(messages)

	var (
		content []ContentBlock
		text    string
		usage   Usage
	)

	for response, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			providerErr := p.parseError(err)
			if p.circuitBreaker != nil {
				p.circuitBreaker.RecordResult(providerErr)
			}
			return nil, providerErr
		}

		if response.UsageMetadata != nil {
			usage = Usage{
				InputTokens:  int64(response.UsageMetadata.PromptTokenCount),
				OutputTokens: int64(response.UsageMetadata.CandidatesTokenCount),
			}
		}

		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
			continue
		}

		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text != "" {
				text += part.Text
				if options.StreamCallback != nil {
					options.StreamCallback(ctx, part.Text)
				}
			}
			if part.FunctionCall != nil {
				content = append(content, toolCallFromFunctionCall(part.FunctionCall))
			}
		}
	}

	if p.circuitBreaker != nil {
		p.circuitBreaker.RecordResult(nil)
	}

	if text != "" {
		content = append([]ContentBlock{&TextBlock{Text: text}}, content...)
	}

	return NewAssistantMessage(content, usage), nil
}

// toolCallFromFunctionCall normalizes a Gemini function call. Gemini
// rarely populates call ids, so one is synthesized to keep parallel
// calls to the same tool distinguishable.
func toolCallFromFunctionCall(call *genai.FunctionCall) *ToolCallBlock {
	args, err := json.Marshal(call.Args)
	if err != nil {
		args = []byte("{}")
	}
	callID := call.ID
	if callID == "" {
		callID = uuid.NewString()
	}
	return &ToolCallBlock{
		ID:   callID,
		Tool: call.Name,
		Args: args,
	}
}

func (p *GeminiProvider) transformMessages(messages []*Message) []*genai.Content {
	var contents []*genai.Content

	for _, message := range messages {
		switch message.Role {
		case RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			for _, block := range message.Content {
				switch block := block.(type) {
				case *TextBlock:
					content.Parts = append(content.Parts, &genai.Part{Text: block.Text})
				case *ToolCallBlock:
					var args map[string]any
					_ = json.Unmarshal(block.Args, &args)
					content.Parts = append(content.Parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{
							Name: block.Tool,
							Args: args,
						},
					})
				}
			}
			contents = append(contents, content)
		default:
			for _, block := range message.Content {
				switch block := block.(type) {
				case *TextBlock:
					contents = append(contents, genai.NewContentFromText(block.Text, genai.RoleUser))
				case *ToolResultBlock:
					var result map[string]any
					if err := json.Unmarshal([]byte(block.Result), &result); err != nil || result == nil {
						result = map[string]any{"result": block.Result}
					}
					contents = append(contents, &genai.Content{
						// Gemini expects function responses in a user turn.
						Role: genai.RoleUser,
						Parts: []*genai.Part{{
							FunctionResponse: &genai.FunctionResponse{
								Name:     block.Tool,
								Response: result,
							},
						}},
					})
				}
			}
		}
	}

	return contents
}

func (p *GeminiProvider) transformTools(tools []ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toGeminiSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON schema map into the typed schema the
// Gemini API expects. Arrays must carry an items schema.
func toGeminiSchema(node map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := node["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if d, ok := node["description"].(string); ok {
		schema.Description = d
	}
	switch required := node["required"].(type) {
	case []string:
		schema.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if props, ok := node["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if schema.Type == genai.TypeArray {
		if items, ok := node["items"].(map[string]any); ok {
			schema.Items = toGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func (p *GeminiProvider) parseError(err error) *ProviderError {
	providerErr := &ProviderError{
		Provider: "gemini",
		Kind:     ProviderErrorKindUnknown,
		Err:      err,
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		providerErr.StatusCode = apiErr.Code
		providerErr.Kind = KindFromStatus(apiErr.Code)
	}

	return providerErr
}
