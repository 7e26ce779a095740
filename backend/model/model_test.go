package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	deepseek "github.com/cohesion-org/deepseek-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/inkwell-ai/inkwell/shared/config"
)

func TestIsValidModel(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"openai", "gemini", "deepseek-chat", "deepseek-reasoner"} {
		if !IsValidModel(id) {
			t.Errorf("IsValidModel(%q) = false", id)
		}
	}
	for _, id := range []string{"", "gpt-4", "claude", "OPENAI", "deepseek"} {
		if IsValidModel(id) {
			t.Errorf("IsValidModel(%q) = true", id)
		}
	}
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistryWithBindings(map[ModelID]Binding{
		ModelOpenAI: {ModelName: "gpt"},
	})

	binding, err := registry.Lookup("openai")
	if err != nil {
		t.Fatalf("Lookup returned %v", err)
	}
	if binding.ModelName != "gpt" {
		t.Errorf("ModelName = %q", binding.ModelName)
	}

	if _, err := registry.Lookup("claude"); err == nil {
		t.Error("Lookup accepted an unknown model")
	}
	// Valid identifier without a configured provider.
	if _, err := registry.Lookup("gemini"); err == nil {
		t.Error("Lookup accepted an unconfigured model")
	}
}

func TestNewRegistry_SkipsMissingCredentials(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry(&config.Settings{OpenAIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewRegistry returned %v", err)
	}

	if _, err := registry.Lookup("openai"); err != nil {
		t.Errorf("openai unavailable: %v", err)
	}
	if _, err := registry.Lookup("gemini"); err == nil {
		t.Error("gemini available without a key")
	}
	if _, err := registry.Embedder(); err != nil {
		t.Errorf("Embedder unavailable: %v", err)
	}
	if _, err := registry.Vision(); err == nil {
		t.Error("Vision available without an Anthropic key")
	}
}

func TestMessage_TextAndToolCalls(t *testing.T) {
	t.Parallel()

	message := NewAssistantMessage([]ContentBlock{
		&TextBlock{Text: "Let me check. "},
		&ToolCallBlock{ID: "call-1", Tool: "web", Args: json.RawMessage(`{}`)},
		&TextBlock{Text: "One moment."},
	}, Usage{})

	if got := message.Text(); got != "Let me check. One moment." {
		t.Errorf("Text = %q", got)
	}
	calls := message.ToolCalls()
	if len(calls) != 1 || calls[0].ID != "call-1" {
		t.Errorf("ToolCalls = %+v", calls)
	}
}

func TestUsage_Add(t *testing.T) {
	t.Parallel()

	usage := Usage{InputTokens: 5, OutputTokens: 2}
	usage.Add(Usage{InputTokens: 3, OutputTokens: 4})
	if usage.InputTokens != 8 || usage.OutputTokens != 6 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestKindFromStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   ProviderErrorKind
	}{
		{429, ProviderErrorKindRateLimitExceeded},
		{408, ProviderErrorKindTimeout},
		{503, ProviderErrorKindOverloaded},
		{529, ProviderErrorKindOverloaded},
		{500, ProviderErrorKindInternal},
		{400, ProviderErrorKindInvalidRequest},
		{422, ProviderErrorKindInvalidRequest},
		{404, ProviderErrorKindUnknown},
	}
	for _, tc := range cases {
		if got := KindFromStatus(tc.status); got != tc.want {
			t.Errorf("KindFromStatus(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	err := &ProviderError{Provider: "openai", StatusCode: 500, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ProviderError does not unwrap its cause")
	}
}

func TestToGeminiSchema(t *testing.T) {
	t.Parallel()

	schema := toGeminiSchema(map[string]any{
		"type":        "object",
		"description": "tool input",
		"required":    []any{"query", "limit"},
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "the search query",
			},
			"limit": map[string]any{
				"type": "integer",
			},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"filters": map[string]any{
				"type": "array",
			},
		},
	})

	if schema.Type != genai.TypeObject {
		t.Errorf("Type = %v", schema.Type)
	}
	if schema.Description != "tool input" {
		t.Errorf("Description = %q", schema.Description)
	}
	if len(schema.Required) != 2 || schema.Required[0] != "query" {
		t.Errorf("Required = %v", schema.Required)
	}

	query := schema.Properties["query"]
	if query == nil || query.Type != genai.TypeString || query.Description != "the search query" {
		t.Errorf("query = %+v", query)
	}
	if limit := schema.Properties["limit"]; limit == nil || limit.Type != genai.TypeInteger {
		t.Errorf("limit = %+v", limit)
	}

	tags := schema.Properties["tags"]
	if tags == nil || tags.Type != genai.TypeArray || tags.Items == nil || tags.Items.Type != genai.TypeString {
		t.Errorf("tags = %+v", tags)
	}
	// Arrays without item schemas default to string items; the Gemini
	// API rejects arrays with no item type.
	filters := schema.Properties["filters"]
	if filters == nil || filters.Items == nil || filters.Items.Type != genai.TypeString {
		t.Errorf("filters = %+v", filters)
	}

	// Unknown types degrade to string rather than failing the request.
	if got := geminiType("null"); got != genai.TypeString {
		t.Errorf("geminiType(null) = %v", got)
	}
}

func TestToolCallFromFunctionCall(t *testing.T) {
	t.Parallel()

	first := toolCallFromFunctionCall(&genai.FunctionCall{
		Name: "web",
		Args: map[string]any{"query": "go releases"},
	})
	second := toolCallFromFunctionCall(&genai.FunctionCall{
		Name: "web",
		Args: map[string]any{"query": "go proposals"},
	})

	if first.ID == "" || second.ID == "" {
		t.Fatal("synthesized call id is empty")
	}
	// Two calls to the same tool in one response must stay
	// distinguishable, so the name cannot double as the id.
	if first.ID == second.ID {
		t.Errorf("parallel calls share id %q", first.ID)
	}
	if first.Tool != "web" {
		t.Errorf("Tool = %q", first.Tool)
	}

	var args map[string]any
	if err := json.Unmarshal(first.Args, &args); err != nil {
		t.Fatal(err)
	}
	if args["query"] != "go releases" {
		t.Errorf("args = %v", args)
	}

	// Upstream-assigned ids are kept as the correlation key.
	tagged := toolCallFromFunctionCall(&genai.FunctionCall{ID: "call-7", Name: "web"})
	if tagged.ID != "call-7" {
		t.Errorf("ID = %q, want call-7", tagged.ID)
	}
}

func TestOpenAIProvider_AssistantHistoryUsesContentParts(t *testing.T) {
	t.Parallel()

	provider, err := NewOpenAIProvider("test-key")
	if err != nil {
		t.Fatal(err)
	}
	if provider.client == nil {
		t.Fatal("client is nil")
	}

	out := provider.transformMessages("system", []*Message{
		NewAssistantMessage([]ContentBlock{
			&TextBlock{Text: "let me check"},
			&ToolCallBlock{ID: "call-1", Tool: "web", Args: json.RawMessage(`{"query":"go"}`)},
		}, Usage{}),
	})
	if len(out) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(out))
	}

	assistant, ok := out[1].(openai.ChatCompletionAssistantMessageParam)
	if !ok {
		t.Fatalf("message[1] = %T", out[1])
	}
	parts := assistant.Content.Value
	if len(parts) != 1 {
		t.Fatalf("len(content parts) = %d, want 1", len(parts))
	}
	text, ok := parts[0].(openai.ChatCompletionContentPartTextParam)
	if !ok {
		t.Fatalf("content part = %T", parts[0])
	}
	if text.Text.Value != "let me check" {
		t.Errorf("text = %q", text.Text.Value)
	}
	calls := assistant.ToolCalls.Value
	if len(calls) != 1 || calls[0].ID.Value != "call-1" {
		t.Errorf("tool calls = %+v", calls)
	}
}

func TestDeepSeekProvider_ToolRoundTripFoldsIntoSupportedRoles(t *testing.T) {
	t.Parallel()

	provider := &DeepSeekProvider{}
	out := provider.transformMessages("system", []*Message{
		{Role: RoleUser, Content: []ContentBlock{&TextBlock{Text: "search for go releases"}}},
		NewAssistantMessage([]ContentBlock{
			&TextBlock{Text: "on it"},
			&ToolCallBlock{ID: "call-1", Tool: "web", Args: json.RawMessage(`{"query":"go"}`)},
		}, Usage{}),
		{Role: RoleUser, Content: []ContentBlock{
			&ToolResultBlock{ID: "call-1", Tool: "web", Result: `{"hits":3}`, Succeeded: true},
		}},
	})

	if len(out) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(out))
	}
	for _, message := range out {
		switch message.Role {
		case deepseek.ChatMessageRoleSystem, deepseek.ChatMessageRoleUser, deepseek.ChatMessageRoleAssistant:
		default:
			t.Errorf("unsupported role %q", message.Role)
		}
	}

	assistant := out[2]
	if assistant.Role != deepseek.ChatMessageRoleAssistant {
		t.Fatalf("role = %q", assistant.Role)
	}
	for _, want := range []string{"on it", "web", "call-1", `{"query":"go"}`} {
		if !strings.Contains(assistant.Content, want) {
			t.Errorf("assistant content %q missing %q", assistant.Content, want)
		}
	}

	result := out[3]
	if result.Role != deepseek.ChatMessageRoleUser {
		t.Errorf("result role = %q", result.Role)
	}
	if result.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q", result.ToolCallID)
	}
	for _, want := range []string{"web", "call-1", `{"hits":3}`} {
		if !strings.Contains(result.Content, want) {
			t.Errorf("result content %q missing %q", result.Content, want)
		}
	}
}
