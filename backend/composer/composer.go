// Package composer implements the structured document-assistant path.
// Unlike chat, the model's entire reply is a single JSON object that is
// validated before anything reaches the caller.
package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inkwell-ai/inkwell/backend/model"
	"github.com/inkwell-ai/inkwell/backend/prompt"
)

// Result is the contract with the editor: a chat message, an optional
// replacement document, and exactly two follow-up prompt suggestions.
type Result struct {
	Message          string   `json:"message"`
	UpdateEditorHTML bool     `json:"updateEditorHTML"`
	EditorHTML       string   `json:"editorHTML"`
	NextPrompt       []string `json:"nextPrompt"`
}

// Request is one composer turn.
type Request struct {
	Model      string
	Prompt     string
	Messages   []prompt.TranscriptMessage
	EditorHTML string
}

// ErrInvalidModel rejects a model id outside the known set.
var ErrInvalidModel = errors.New("invalid model")

// SchemaError reports a generation whose output did not match the
// result schema. It is a generation defect, not a transport failure,
// and is never retried.
type SchemaError struct {
	Reason  string
	RawSize int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("composer response failed schema validation: %s (raw response %d bytes)", e.Reason, e.RawSize)
}

// resultSchema constrains generation on providers that support schemas.
// Providers that cannot enforce it fall back to JSON mode and rely on
// the strict decode below.
var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"message": map[string]any{
			"type":        "string",
			"description": "The response message to be shown to the user",
		},
		"updateEditorHTML": map[string]any{
			"type":        "boolean",
			"description": "Whether the editor HTML should be updated",
		},
		"editorHTML": map[string]any{
			"type":        "string",
			"description": "The HTML content to update the editor with. Must be valid HTML that preserves structure and formatting.",
		},
		"nextPrompt": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Two suggested follow-up prompts for the user based on the conversation history and current editor state",
		},
	},
	"required": []string{"message", "updateEditorHTML", "editorHTML", "nextPrompt"},
}

// Composer generates structured document updates.
type Composer struct {
	registry *model.Registry
	logger   *slog.Logger
}

func NewComposer(registry *model.Registry, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{registry: registry, logger: logger}
}

// Compose runs one structured generation. Unknown models yield a
// validation error before any provider call.
func (c *Composer) Compose(ctx context.Context, req Request) (*Result, error) {
	if !model.IsValidModel(req.Model) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, req.Model)
	}

	binding, err := c.registry.Lookup(req.Model)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", req.Model, err)
	}

	opts := []model.InvokeOption{model.WithResponseSchema(resultSchema)}
	if strings.HasPrefix(req.Model, "deepseek") {
		opts = append(opts, model.WithMaxTokens(4096), model.WithTemperature(0.5))
	}

	response, err := binding.Provider.Invoke(ctx, binding.ModelName,
		prompt.ComposerSystem(req.EditorHTML, req.Messages),
		[]*model.Message{model.NewUserMessage(req.Prompt)},
		opts...)
	if err != nil {
		return nil, fmt.Errorf("composer generation failed: %w", err)
	}

	raw := response.Text()
	result, err := decodeResult(raw)
	if err != nil {
		c.logger.Error("composer schema validation failed",
			"error", err,
			"raw_length", len(raw),
			"model", req.Model,
		)
		return nil, err
	}

	c.logger.Info("composer generation completed",
		"model", req.Model,
		"update_editor", result.UpdateEditorHTML,
		"message_length", len(result.Message),
	)
	return result, nil
}

// decodeResult strictly parses the generation into a Result. Some
// providers wrap the object in code fences or prose, so the outermost
// JSON object is extracted first.
func decodeResult(raw string) (*Result, error) {
	extracted := extractJSONObject(raw)
	if extracted == "" {
		return nil, &SchemaError{Reason: "no JSON object in response", RawSize: len(raw)}
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(extracted)))
	decoder.DisallowUnknownFields()

	var result Result
	if err := decoder.Decode(&result); err != nil {
		return nil, &SchemaError{Reason: err.Error(), RawSize: len(raw)}
	}
	// An empty message string is valid; only the absent key is a
	// schema violation.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extracted), &keys); err == nil {
		if _, ok := keys["message"]; !ok {
			return nil, &SchemaError{Reason: "message is missing", RawSize: len(raw)}
		}
	}
	if len(result.NextPrompt) != 2 {
		return nil, &SchemaError{
			Reason:  fmt.Sprintf("nextPrompt must contain exactly 2 entries, got %d", len(result.NextPrompt)),
			RawSize: len(raw),
		}
	}
	return &result, nil
}

// extractJSONObject returns the outermost {...} in raw, or "".
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// ApplyToDocument returns the document content after a composer result,
// replacing it only when the result asks for an update.
func ApplyToDocument(doc string, result *Result) string {
	if result != nil && result.UpdateEditorHTML {
		return result.EditorHTML
	}
	return doc
}
