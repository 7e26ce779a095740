package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/backend/event"
	"github.com/inkwell-ai/inkwell/backend/model"
	"github.com/inkwell-ai/inkwell/backend/prompt"
	"github.com/inkwell-ai/inkwell/backend/streamerr"
	"github.com/inkwell-ai/inkwell/backend/tool"
)

// MaxToolRounds caps how many times the model may request tools in one
// turn. After the cap the provider is re-invoked with no tools so it
// must answer from the results gathered so far.
const MaxToolRounds = 3

// ValidationError rejects a request before any provider call. The API
// layer maps it to a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Request is one user turn.
type Request struct {
	ID       string
	Tool     string
	Model    string
	Messages []prompt.TranscriptMessage
	Notes    string
	Image    string
}

// Driver orchestrates a chat turn: provider calls, tool rounds, and
// streaming output, reporting every step to the event bus.
type Driver struct {
	registry *model.Registry
	bus      *event.Bus
	toolDeps tool.Deps
	logger   *slog.Logger
}

func NewDriver(registry *model.Registry, bus *event.Bus, toolDeps tool.Deps, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		registry: registry,
		bus:      bus,
		toolDeps: toolDeps,
		logger:   logger,
	}
}

// Run executes one turn, writing output frames to the sink as they are
// produced. Unknown models fail with *ValidationError before anything
// is streamed. Provider and stream failures are classified; the
// classification's user message is emitted as an error frame and the
// classified error returned.
func (d *Driver) Run(ctx context.Context, req Request, sink StreamSink) error {
	if !model.IsValidModel(req.Model) {
		return &ValidationError{Message: "Invalid model"}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	binding, err := d.registry.Lookup(req.Model)
	if err != nil {
		return fmt.Errorf("model %s: %w", req.Model, err)
	}

	logger := d.logger.With("request_id", req.ID, "tool", req.Tool, "model", req.Model)
	logger.Info("chat turn started", "messages", len(req.Messages))

	event.Publish(d.bus, event.TurnStartedEvent{
		RequestID: req.ID,
		Tool:      req.Tool,
		Model:     req.Model,
		Messages:  len(req.Messages),
	})

	toolRegistry := tool.NewRegistry(d.toolDeps, req.Notes, req.Image)
	activeSpecs := tool.Specs(toolRegistry.ActiveSet(req.Tool))
	systemPrompt := prompt.ChatSystem(req.Tool)
	transcript := transcriptMessages(req.Messages)

	streamStart := time.Now()
	chunks := 0
	streamHandler := model.WithStreamHandler(func(ctx context.Context, chunk string) {
		if chunks == 0 {
			event.Publish(d.bus, event.StreamStartedEvent{RequestID: req.ID, Model: req.Model})
		}
		chunks++
		if err := sink.Text(chunk); err != nil {
			logger.Warn("failed to forward text delta", "error", err)
		}
	})

	var usage model.Usage
	for round := 1; round <= MaxToolRounds; round++ {
		roundStart := time.Now()

		response, err := binding.Provider.Invoke(ctx, binding.ModelName, systemPrompt, transcript,
			model.WithTools(activeSpecs...), streamHandler)
		if err != nil {
			return d.fail(req.ID, logger, sink, err)
		}
		usage.Add(response.Usage)

		calls := response.ToolCalls()
		if len(calls) == 0 {
			return d.finish(req.ID, logger, sink, usage, chunks, streamStart)
		}

		transcript = append(transcript, response)
		results := make([]model.ContentBlock, 0, len(calls))
		for _, call := range calls {
			result := d.executeCall(ctx, req.ID, round, toolRegistry, call, sink, logger)
			results = append(results, result)
		}
		transcript = append(transcript, &model.Message{
			Role:    model.RoleUser,
			Content: results,
		})

		event.Publish(d.bus, event.RoundCompletedEvent{
			RequestID: req.ID,
			Round:     round,
			ToolCalls: len(calls),
			Duration:  time.Since(roundStart),
		})
	}

	// Round cap reached: force a final answer from the gathered results.
	response, err := binding.Provider.Invoke(ctx, binding.ModelName, systemPrompt, transcript, streamHandler)
	if err != nil {
		return d.fail(req.ID, logger, sink, err)
	}
	usage.Add(response.Usage)
	return d.finish(req.ID, logger, sink, usage, chunks, streamStart)
}

// executeCall runs one tool call and emits its frames and events. Tool
// failures become error-bearing results so the model can react to them
// conversationally instead of crashing the turn.
func (d *Driver) executeCall(ctx context.Context, requestID string, round int, registry *tool.Registry, call *model.ToolCallBlock, sink StreamSink, logger *slog.Logger) model.ContentBlock {
	if err := sink.ToolCall(ToolCallFrame{
		ToolCallID: call.ID,
		ToolName:   call.Tool,
		Args:       call.Args,
	}); err != nil {
		logger.Warn("failed to forward tool call frame", "error", err)
	}
	event.Publish(d.bus, event.ToolCallEvent{
		RequestID: requestID,
		CallID:    call.ID,
		Tool:      call.Tool,
		Round:     round,
	})

	callStart := time.Now()
	var (
		result string
		err    error
	)
	if t, ok := registry.Get(call.Tool); ok {
		result, err = t.Call(ctx, call.Args)
	} else {
		err = fmt.Errorf("unknown tool %q", call.Tool)
	}

	succeeded := err == nil
	if err != nil {
		logger.Warn("tool call failed", "call_id", call.ID, "tool", call.Tool, "error", err)
		payload, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
		if marshalErr != nil {
			payload = []byte(`{"error":"tool execution failed"}`)
		}
		result = string(payload)
	}

	if sendErr := sink.ToolResult(ToolResultFrame{
		ToolCallID: call.ID,
		Result:     json.RawMessage(toJSONValue(result)),
	}); sendErr != nil {
		logger.Warn("failed to forward tool result frame", "error", sendErr)
	}
	event.Publish(d.bus, event.ToolResultEvent{
		RequestID: requestID,
		CallID:    call.ID,
		Tool:      call.Tool,
		Round:     round,
		Succeeded: succeeded,
		Duration:  time.Since(callStart),
	})

	return &model.ToolResultBlock{
		ID:        call.ID,
		Tool:      call.Tool,
		Result:    result,
		Succeeded: succeeded,
	}
}

func (d *Driver) finish(requestID string, logger *slog.Logger, sink StreamSink, usage model.Usage, chunks int, streamStart time.Time) error {
	if err := sink.Finish(FinishFrame{
		FinishReason: "stop",
		Usage: UsageFrame{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
		},
	}); err != nil {
		logger.Warn("failed to write finish frame", "error", err)
	}

	event.Publish(d.bus, event.StreamFinishedEvent{
		RequestID: requestID,
		Chunks:    chunks,
		Duration:  time.Since(streamStart),
	})
	logger.Info("chat turn completed", "chunks", chunks,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	return nil
}

func (d *Driver) fail(requestID string, logger *slog.Logger, sink StreamSink, err error) error {
	classification := streamerr.Classify(err)
	logger.Error("chat turn failed",
		"error", err,
		"error_type", classification.Type,
		"error_id", classification.ErrorID,
		"retryable", classification.Retryable,
	)

	if sink.Started() {
		if sendErr := sink.StreamError(classification.UserMessage); sendErr != nil {
			logger.Warn("failed to write error frame", "error", sendErr)
		}
	}
	event.Publish(d.bus, event.TurnFailedEvent{
		RequestID: requestID,
		ErrorType: string(classification.Type),
		ErrorID:   classification.ErrorID,
	})

	return &streamerr.StreamError{Classification: classification, Err: err}
}

// transcriptMessages converts the wire transcript into provider
// messages. Unknown roles are treated as user turns.
func transcriptMessages(messages []prompt.TranscriptMessage) []*model.Message {
	converted := make([]*model.Message, 0, len(messages))
	for _, message := range messages {
		role := model.RoleUser
		if message.Role == string(model.RoleAssistant) {
			role = model.RoleAssistant
		}
		converted = append(converted, &model.Message{
			Role:    role,
			Content: []model.ContentBlock{&model.TextBlock{Text: message.Content}},
		})
	}
	return converted
}

// toJSONValue passes through strings that already hold JSON and quotes
// everything else, so tool results are always a valid frame payload.
func toJSONValue(s string) []byte {
	if json.Valid([]byte(s)) && s != "" {
		return []byte(s)
	}
	quoted, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return quoted
}
