package event

import "time"

// TurnStartedEvent is published after request validation, before the
// first provider call.
type TurnStartedEvent struct {
	RequestID string
	Tool      string
	Model     string
	Messages  int
}

func (TurnStartedEvent) Event() {}

// ToolCallEvent marks a tool invocation requested by the model.
type ToolCallEvent struct {
	RequestID string
	CallID    string
	Tool      string
	Round     int
}

func (ToolCallEvent) Event() {}

// ToolResultEvent marks the outcome of one tool call.
type ToolResultEvent struct {
	RequestID string
	CallID    string
	Tool      string
	Round     int
	Succeeded bool
	Duration  time.Duration
}

func (ToolResultEvent) Event() {}

// RoundCompletedEvent is published after every tool call of a round has
// produced a result and the transcript has been extended.
type RoundCompletedEvent struct {
	RequestID string
	Round     int
	ToolCalls int
	Duration  time.Duration
}

func (RoundCompletedEvent) Event() {}

type StreamStartedEvent struct {
	RequestID string
	Model     string
}

func (StreamStartedEvent) Event() {}

type StreamFinishedEvent struct {
	RequestID string
	Chunks    int
	Duration  time.Duration
}

func (StreamFinishedEvent) Event() {}

// TurnFailedEvent carries the classified failure of a turn.
type TurnFailedEvent struct {
	RequestID string
	ErrorType string
	ErrorID   string
}

func (TurnFailedEvent) Event() {}
