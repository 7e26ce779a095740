package chat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// The response body is a sequence of line-oriented data-stream frames,
// each a one-character type tag, a colon, and a JSON payload:
//
//	0:"text delta"
//	9:{"toolCallId":"...","toolName":"...","args":{...}}
//	a:{"toolCallId":"...","result":{...}}
//	3:"error message"
//	d:{"finishReason":"stop","usage":{"promptTokens":1,"completionTokens":2}}
const (
	frameText       = "0"
	frameError      = "3"
	frameToolCall   = "9"
	frameToolResult = "a"
	frameFinish     = "d"
)

type ToolCallFrame struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type ToolResultFrame struct {
	ToolCallID string          `json:"toolCallId"`
	Result     json.RawMessage `json:"result"`
}

type UsageFrame struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

type FinishFrame struct {
	FinishReason string     `json:"finishReason"`
	Usage        UsageFrame `json:"usage"`
}

// StreamSink receives the turn's output as it is produced. The driver
// never buffers text deltas. Started reports whether any frame was
// written; failures before the first frame are reported out of band
// instead of as an error frame.
type StreamSink interface {
	Text(delta string) error
	ToolCall(call ToolCallFrame) error
	ToolResult(result ToolResultFrame) error
	StreamError(message string) error
	Finish(finish FinishFrame) error
	Started() bool
}

// Encoder writes data-stream frames to a writer, flushing after every
// frame when the writer supports it.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	started bool
}

// Started reports whether any frame has been written. Callers use it to
// decide between an in-stream error frame and a JSON error response.
func (e *Encoder) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

func NewEncoder(w io.Writer) *Encoder {
	encoder := &Encoder{w: w}
	if flusher, ok := w.(http.Flusher); ok {
		encoder.flusher = flusher
	}
	return encoder
}

func (e *Encoder) Text(delta string) error {
	return e.writeFrame(frameText, delta)
}

func (e *Encoder) ToolCall(call ToolCallFrame) error {
	return e.writeFrame(frameToolCall, call)
}

func (e *Encoder) ToolResult(result ToolResultFrame) error {
	return e.writeFrame(frameToolResult, result)
}

func (e *Encoder) StreamError(message string) error {
	return e.writeFrame(frameError, message)
}

func (e *Encoder) Finish(finish FinishFrame) error {
	return e.writeFrame(frameFinish, finish)
}

func (e *Encoder) writeFrame(tag string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", tag, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	if _, err := fmt.Fprintf(e.w, "%s:%s\n", tag, encoded); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", tag, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// Frame is one decoded stream frame; exactly one field is set.
type Frame struct {
	Text       *string
	ToolCall   *ToolCallFrame
	ToolResult *ToolResultFrame
	Error      *string
	Finish     *FinishFrame
}

// Decoder reads data-stream frames from a response body.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Next returns the next frame, or io.EOF when the stream ends.
func (d *Decoder) Next() (Frame, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		return ParseFrame(line)
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("data stream read failed: %w", err)
	}
	return Frame{}, io.EOF
}

// ParseFrame decodes a single data-stream line.
func ParseFrame(line string) (Frame, error) {
	tag, payload, found := strings.Cut(line, ":")
	if !found {
		return Frame{}, fmt.Errorf("malformed data stream frame: %q", line)
	}

	switch tag {
	case frameText:
		var text string
		if err := json.Unmarshal([]byte(payload), &text); err != nil {
			return Frame{}, fmt.Errorf("data stream text frame: %w", err)
		}
		return Frame{Text: &text}, nil
	case frameToolCall:
		var call ToolCallFrame
		if err := json.Unmarshal([]byte(payload), &call); err != nil {
			return Frame{}, fmt.Errorf("data stream tool call frame: %w", err)
		}
		return Frame{ToolCall: &call}, nil
	case frameToolResult:
		var result ToolResultFrame
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return Frame{}, fmt.Errorf("data stream tool result frame: %w", err)
		}
		return Frame{ToolResult: &result}, nil
	case frameError:
		var message string
		if err := json.Unmarshal([]byte(payload), &message); err != nil {
			return Frame{}, fmt.Errorf("data stream error frame: %w", err)
		}
		return Frame{Error: &message}, nil
	case frameFinish:
		var finish FinishFrame
		if err := json.Unmarshal([]byte(payload), &finish); err != nil {
			return Frame{}, fmt.Errorf("data stream finish frame: %w", err)
		}
		return Frame{Finish: &finish}, nil
	default:
		return Frame{}, fmt.Errorf("unknown data stream frame tag %q", tag)
	}
}
