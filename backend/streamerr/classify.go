// Package streamerr classifies streaming failures into a fixed taxonomy
// and drives the client-side retry policy. Matching is a best-effort
// heuristic over error text and HTTP status; it is not authoritative,
// and error shapes it does not recognize fall to UNKNOWN_ERROR rather
// than being miscategorized.
package streamerr

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/inkwell-ai/inkwell/backend/model"
)

type Type string

const (
	TypeStreamProcessing Type = "STREAM_PROCESSING_ERROR"
	TypeJSONParsing      Type = "JSON_PARSING_ERROR"
	TypeNetwork          Type = "NETWORK_ERROR"
	TypeTimeout          Type = "TIMEOUT_ERROR"
	TypeAborted          Type = "ABORTED_ERROR"
	TypeRateLimit        Type = "RATE_LIMIT_ERROR"
	TypeValidation       Type = "VALIDATION_ERROR"
	TypeUpstream         Type = "UPSTREAM_ERROR"
	TypeUnknown          Type = "UNKNOWN_ERROR"
)

// Classification is derived from a raw error each time one occurs and
// is never persisted. ErrorID is the only non-deterministic field.
type Classification struct {
	Type        Type   `json:"errorType"`
	UserMessage string `json:"userMessage"`
	Retryable   bool   `json:"retryable"`
	ErrorID     string `json:"errorId"`
}

// Rule matches an error against one taxonomy entry. Message is the
// user-facing text before the correlation id is appended.
type Rule struct {
	Type      Type
	Retryable bool
	Message   string
	Match     func(text string, err error) bool
}

// Classifier applies an ordered rule table; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from the default taxonomy with the
// given rules checked first. Pass nothing for the stock behavior.
func NewClassifier(extra ...Rule) *Classifier {
	return &Classifier{rules: append(extra, defaultRules()...)}
}

var defaultClassifier = NewClassifier()

// Classify runs the default classifier.
func Classify(err error) Classification {
	return defaultClassifier.Classify(err)
}

// Classify matches err against the rule table. It never panics; any
// internal failure yields UNKNOWN_ERROR.
func (c *Classifier) Classify(err error) (classification Classification) {
	errorID := newErrorID()
	classification = Classification{
		Type:        TypeUnknown,
		UserMessage: userMessage("An unexpected error occurred. Please try again.", errorID),
		Retryable:   true,
		ErrorID:     errorID,
	}
	if err == nil {
		return classification
	}

	defer func() {
		if recover() != nil {
			classification = Classification{
				Type:        TypeUnknown,
				UserMessage: userMessage("An unexpected error occurred. Please try again.", errorID),
				Retryable:   true,
				ErrorID:     errorID,
			}
		}
	}()

	text := strings.ToLower(err.Error())
	for _, rule := range c.rules {
		if rule.Match(text, err) {
			classification = Classification{
				Type:        rule.Type,
				UserMessage: userMessage(rule.Message, errorID),
				Retryable:   rule.Retryable,
				ErrorID:     errorID,
			}
			break
		}
	}
	return classification
}

func defaultRules() []Rule {
	return []Rule{
		{
			Type:      TypeJSONParsing,
			Retryable: true,
			Message:   "There was an error in the response format. Please try again.",
			Match: func(text string, err error) bool {
				return streamInternals(text) && strings.Contains(text, "json")
			},
		},
		{
			Type:      TypeStreamProcessing,
			Retryable: true,
			Message:   "There was a problem processing the response. Please try again.",
			Match: func(text string, err error) bool {
				return streamInternals(text)
			},
		},
		{
			Type:      TypeNetwork,
			Retryable: true,
			Message:   "A network error occurred. Please check your connection and try again.",
			Match: func(text string, err error) bool {
				var netErr net.Error
				if errors.As(err, &netErr) && !netErr.Timeout() {
					return true
				}
				return strings.Contains(text, "network") ||
					strings.Contains(text, "fetch") ||
					strings.Contains(text, "connection refused")
			},
		},
		{
			Type:      TypeTimeout,
			Retryable: true,
			Message:   "The request timed out. Please try again.",
			Match: func(text string, err error) bool {
				if errors.Is(err, context.DeadlineExceeded) {
					return true
				}
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					return true
				}
				return strings.Contains(text, "timeout") || strings.Contains(text, "timed out")
			},
		},
		{
			Type:      TypeAborted,
			Retryable: false,
			Message:   "The request was aborted.",
			Match: func(text string, err error) bool {
				return errors.Is(err, context.Canceled) ||
					strings.Contains(text, "aborted") ||
					strings.Contains(text, "context canceled")
			},
		},
		{
			Type:      TypeRateLimit,
			Retryable: true,
			Message:   "The provider is rate limiting requests. Please wait a moment and try again.",
			Match:     statusMatch(func(status int) bool { return status == 429 }),
		},
		{
			Type:      TypeValidation,
			Retryable: false,
			Message:   "The request was rejected by the provider.",
			Match:     statusMatch(func(status int) bool { return status == 400 || status == 422 }),
		},
		{
			Type:      TypeUpstream,
			Retryable: true,
			Message:   "The provider reported an internal failure. Please try again.",
			Match:     statusMatch(func(status int) bool { return status >= 500 }),
		},
	}
}

// streamInternals reports whether the error text names the stream
// decode path.
func streamInternals(text string) bool {
	return strings.Contains(text, "data stream") ||
		strings.Contains(text, "processdatastream") ||
		strings.Contains(text, "onerrorpart") ||
		strings.Contains(text, "stream frame")
}

func statusMatch(match func(status int) bool) func(string, error) bool {
	return func(text string, err error) bool {
		var providerErr *model.ProviderError
		if errors.As(err, &providerErr) && providerErr.StatusCode != 0 {
			return match(providerErr.StatusCode)
		}
		return false
	}
}

func userMessage(message, errorID string) string {
	return message + " (Error ID: " + errorID + ")"
}

// newErrorID returns the short correlation id embedded in user messages
// and logs.
func newErrorID() string {
	return uuid.NewString()[:8]
}
