package streamerr

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultMaxRetries is the retry budget on top of the initial attempt.
const DefaultMaxRetries = 3

const (
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 10 * time.Second
)

// StreamError carries the classification of an exhausted or
// non-retryable failure for the caller to render.
type StreamError struct {
	Classification Classification
	Err            error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Classification.Type, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

type doOptions struct {
	classifier *Classifier
	baseDelay  time.Duration
	maxDelay   time.Duration
}

type DoOption func(*doOptions)

// WithClassifier substitutes the rule table used to decide
// retryability.
func WithClassifier(classifier *Classifier) DoOption {
	return func(o *doOptions) {
		o.classifier = classifier
	}
}

// WithBaseDelay scales the backoff schedule. Tests use it to avoid
// multi-second sleeps.
func WithBaseDelay(base time.Duration) DoOption {
	return func(o *doOptions) {
		o.baseDelay = base
	}
}

// Backoff returns the delay before retry n (1-based):
// min(base * 2^n, max). With the defaults that is 2s, 4s, 8s.
func Backoff(n uint, base, max time.Duration) time.Duration {
	delay := base << n
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}

// Do runs fn up to 1+maxRetries times. Attempt failures are classified;
// non-retryable classifications stop immediately. The error returned
// after the final attempt is a *StreamError wrapping the last failure.
func Do(ctx context.Context, fn func(ctx context.Context) error, maxRetries int, opts ...DoOption) error {
	options := &doOptions{
		classifier: defaultClassifier,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(options)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	err := retry.Do(
		func() error { return fn(ctx) },
		retry.Attempts(uint(maxRetries)+1),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return options.classifier.Classify(err).Retryable
		}),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			return Backoff(n+1, options.baseDelay, options.maxDelay)
		}),
	)
	if err == nil {
		return nil
	}

	return &StreamError{
		Classification: options.classifier.Classify(err),
		Err:            err,
	}
}
