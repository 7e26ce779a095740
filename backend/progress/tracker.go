// Package progress simulates tool-call progress. Tool calls provide no
// real progress events, so the percentage is driven off a static
// per-tool time estimate and capped below 100 until the real result
// arrives.
package progress

import (
	"sync"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

const (
	tickCount  = 20
	capPercent = 95.0
	resetDelay = 5 * time.Second
)

// estimates holds the simulated completion time per tool.
var estimates = map[string]time.Duration{
	"web":        5000 * time.Millisecond,
	"x":          3000 * time.Millisecond,
	"url":        2000 * time.Millisecond,
	"fileSearch": 2000 * time.Millisecond,
	"notes":      1500 * time.Millisecond,
	"whiteboard": 6000 * time.Millisecond,
}

const defaultEstimate = 1000 * time.Millisecond

// Estimate returns the simulated completion time for a tool.
func Estimate(tool string) time.Duration {
	if estimate, ok := estimates[tool]; ok {
		return estimate
	}
	return defaultEstimate
}

// State is the current progress snapshot. Percentage is monotone while
// the call is active and reaches exactly 100 only on completion.
type State struct {
	Active     bool
	Tool       string
	Args       string
	StartTime  time.Time
	EndTime    time.Time
	Status     Status
	Percentage float64
	Message    string
}

// Patch carries the fields of an intermediate update. Nil fields are
// left unchanged.
type Patch struct {
	Status     *Status
	Message    *string
	Percentage *float64
}

// Tracker holds one active tool-call progress state. A new Start
// replaces the previous call.
type Tracker struct {
	mu         sync.Mutex
	state      State
	onUpdate   func(State)
	tickStop   chan struct{}
	resetTimer *time.Timer
	estimate   func(tool string) time.Duration
}

type Option func(*Tracker)

// WithUpdateFunc registers a callback invoked with a snapshot after
// every state change.
func WithUpdateFunc(fn func(State)) Option {
	return func(t *Tracker) {
		t.onUpdate = fn
	}
}

// WithEstimateFunc substitutes the estimate table, used by tests to
// shrink the simulated durations.
func WithEstimateFunc(fn func(tool string) time.Duration) Option {
	return func(t *Tracker) {
		t.estimate = fn
	}
}

func NewTracker(opts ...Option) *Tracker {
	tracker := &Tracker{estimate: Estimate}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// Start begins tracking a tool call and schedules the simulated ticks.
// Any previous call's timers are cleared first.
func (t *Tracker) Start(tool, args string) {
	t.mu.Lock()
	t.clearTimersLocked()

	start := time.Now()
	t.state = State{
		Active:    true,
		Tool:      tool,
		Args:      args,
		StartTime: start,
		Status:    StatusRunning,
	}

	estimate := t.estimate(tool)
	interval := estimate / tickCount
	if interval <= 0 {
		interval = time.Millisecond
	}
	stop := make(chan struct{})
	t.tickStop = stop
	t.notifyLocked()
	t.mu.Unlock()

	go t.tickLoop(stop, start, estimate, interval)
}

func (t *Tracker) tickLoop(stop chan struct{}, start time.Time, estimate time.Duration, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			if !t.state.Active || !t.state.StartTime.Equal(start) {
				t.mu.Unlock()
				return
			}
			elapsed := now.Sub(start)
			percentage := float64(elapsed) / float64(estimate) * 100
			if percentage > capPercent {
				percentage = capPercent
			}
			if percentage > t.state.Percentage {
				t.state.Percentage = percentage
				t.notifyLocked()
			}
			t.mu.Unlock()
		}
	}
}

// Update merges intermediate results into the active state.
func (t *Tracker) Update(patch Patch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if patch.Status != nil {
		t.state.Status = *patch.Status
	}
	if patch.Message != nil {
		t.state.Message = *patch.Message
	}
	if patch.Percentage != nil && *patch.Percentage > t.state.Percentage && *patch.Percentage <= capPercent {
		t.state.Percentage = *patch.Percentage
	}
	t.notifyLocked()
}

// Complete forces the percentage to 100, records the end time, and
// schedules the auto-reset. The reset only fires if this completion is
// still the current state five seconds later; a newer call resets the
// end time and disarms the guard.
func (t *Tracker) Complete(status Status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTicksLocked()
	t.state.Active = false
	t.state.EndTime = time.Now()
	t.state.Status = status
	t.state.Percentage = 100
	t.state.Message = message
	t.notifyLocked()

	if t.resetTimer != nil {
		t.resetTimer.Stop()
	}
	t.resetTimer = time.AfterFunc(resetDelay, t.maybeReset)
}

func (t *Tracker) maybeReset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Guard on end-time age so a completion that replaced this one is
	// not wiped just after it finished.
	if t.state.EndTime.IsZero() || time.Since(t.state.EndTime) < resetDelay {
		return
	}
	t.state = State{}
	t.notifyLocked()
}

// Stop clears all timers without touching the state. Callers use it on
// cancellation so no tick or reset goroutine leaks.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearTimersLocked()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) stopTicksLocked() {
	if t.tickStop != nil {
		close(t.tickStop)
		t.tickStop = nil
	}
}

func (t *Tracker) clearTimersLocked() {
	t.stopTicksLocked()
	if t.resetTimer != nil {
		t.resetTimer.Stop()
		t.resetTimer = nil
	}
}

func (t *Tracker) notifyLocked() {
	if t.onUpdate != nil {
		t.onUpdate(t.state)
	}
}
