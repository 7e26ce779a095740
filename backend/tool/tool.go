package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/inkwell-ai/inkwell/backend/model"
)

// Handler executes a tool call with already-validated typed input and
// returns the JSON-encoded result passed back to the model.
type Handler[T any] func(ctx context.Context, input T) (string, error)

type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Call        func(ctx context.Context, args json.RawMessage) (string, error)
}

// Spec converts the tool into the shape providers attach to a request.
func (t Tool) Spec() model.ToolSpec {
	return model.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		Schema:      t.Schema,
	}
}

// ValidationError reports arguments the model produced that do not match
// the tool's schema. It is not the tool's fault and is not retried.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExecutionError reports a tool handler failure. The orchestrator turns
// it into an error-bearing tool result rather than failing the turn.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// New builds a tool whose parameter schema is reflected from T.
func New[T any](name, description string, handler Handler[T]) Tool {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var toolInput T
	inputSchema := reflector.Reflect(toolInput)
	schema := plainSchema(inputSchema)
	required := requiredKeys(schema)

	call := func(ctx context.Context, args json.RawMessage) (string, error) {
		var input T
		supplied := map[string]json.RawMessage{}
		if len(args) > 0 {
			decoder := json.NewDecoder(bytes.NewReader(args))
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&input); err != nil {
				return "", &ValidationError{Tool: name, Err: err}
			}
			_ = json.Unmarshal(args, &supplied)
		}
		for _, key := range required {
			if _, ok := supplied[key]; !ok {
				return "", &ValidationError{Tool: name, Err: fmt.Errorf("missing required parameter %q", key)}
			}
		}

		result, err := handler(ctx, input)
		if err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				return "", err
			}
			return "", &ExecutionError{Tool: name, Err: err}
		}
		return result, nil
	}

	return Tool{
		Name:        name,
		Description: description,
		Schema:      schema,
		Call:        call,
	}
}

func requiredKeys(schema map[string]any) []string {
	listed, _ := schema["required"].([]any)
	keys := make([]string, 0, len(listed))
	for _, entry := range listed {
		if key, ok := entry.(string); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// plainSchema flattens the reflected schema into plain maps so every
// provider transform can walk it without jsonschema types.
func plainSchema(reflected *jsonschema.Schema) map[string]any {
	raw, err := json.Marshal(reflected)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(schema, "$schema")
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
