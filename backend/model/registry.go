package model

import (
	"fmt"

	"github.com/inkwell-ai/inkwell/shared/config"
)

// ModelID is one of the identifiers the HTTP surface accepts.
type ModelID string

const (
	ModelOpenAI           ModelID = "openai"
	ModelGemini           ModelID = "gemini"
	ModelDeepSeekChat     ModelID = "deepseek-chat"
	ModelDeepSeekReasoner ModelID = "deepseek-reasoner"
)

// provider-native model names behind each identifier.
const (
	openAIChatModel     = "gpt-4o-mini-2024-07-18"
	geminiChatModel     = "gemini-1.5-flash-latest"
	deepseekChatModel   = "deepseek-chat"
	deepseekReasonModel = "deepseek-reasoner"
)

var knownModels = map[ModelID]struct{}{
	ModelOpenAI:           {},
	ModelGemini:           {},
	ModelDeepSeekChat:     {},
	ModelDeepSeekReasoner: {},
}

// IsValidModel reports whether id is one of the supported model
// identifiers. The set is closed; anything else is rejected before a
// request reaches a provider.
func IsValidModel(id string) bool {
	_, ok := knownModels[ModelID(id)]
	return ok
}

// Binding pairs a provider client with the provider-native model name an
// identifier resolves to.
type Binding struct {
	Provider  Provider
	ModelName string
}

// Registry maps model identifiers to provider bindings. It is built once
// at startup from Settings and is immutable afterwards; requests share it
// without synchronization.
type Registry struct {
	bindings map[ModelID]Binding
	embedder *OpenAIProvider
	vision   *AnthropicProvider
}

// NewRegistry constructs every provider client the configured credentials
// allow. A missing credential leaves its identifiers unbound; Lookup
// reports them as unavailable rather than invalid.
func NewRegistry(settings *config.Settings, opts ...ProviderOption) (*Registry, error) {
	registry := &Registry{
		bindings: make(map[ModelID]Binding),
	}

	if settings.OpenAIKey != "" {
		openai, err := NewOpenAIProvider(settings.OpenAIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("openai provider: %w", err)
		}
		registry.bindings[ModelOpenAI] = Binding{Provider: openai, ModelName: openAIChatModel}
		registry.embedder = openai
	}

	if settings.GeminiKey != "" {
		gemini, err := NewGeminiProvider(settings.GeminiKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		registry.bindings[ModelGemini] = Binding{Provider: gemini, ModelName: geminiChatModel}
	}

	if settings.DeepSeekKey != "" {
		deepseek, err := NewDeepSeekProvider(settings.DeepSeekKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("deepseek provider: %w", err)
		}
		registry.bindings[ModelDeepSeekChat] = Binding{Provider: deepseek, ModelName: deepseekChatModel}
		registry.bindings[ModelDeepSeekReasoner] = Binding{Provider: deepseek, ModelName: deepseekReasonModel}
	}

	if settings.AnthropicKey != "" {
		anthropic, err := NewAnthropicProvider(settings.AnthropicKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		registry.vision = anthropic
	}

	return registry, nil
}

// NewRegistryWithBindings builds a registry from explicit bindings. Tests
// use it to substitute fake providers.
func NewRegistryWithBindings(bindings map[ModelID]Binding) *Registry {
	return &Registry{bindings: bindings}
}

// Lookup resolves a model identifier to its provider binding.
func (r *Registry) Lookup(id string) (Binding, error) {
	if !IsValidModel(id) {
		return Binding{}, fmt.Errorf("unknown model: %s", id)
	}

	binding, ok := r.bindings[ModelID(id)]
	if !ok {
		return Binding{}, fmt.Errorf("model %s is not configured", id)
	}

	return binding, nil
}

// Embedder returns the provider used for text embeddings, or an error if
// no embedding-capable provider is configured.
func (r *Registry) Embedder() (*OpenAIProvider, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	return r.embedder, nil
}

// Vision returns the provider used for whiteboard image analysis.
func (r *Registry) Vision() (*AnthropicProvider, error) {
	if r.vision == nil {
		return nil, fmt.Errorf("no vision provider configured")
	}
	return r.vision, nil
}
