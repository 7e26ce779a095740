package event_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkwell-ai/inkwell/backend/event"
)

func TestBus_BasicPublishSubscribe(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	done := make(chan struct{})
	sub := event.Subscribe(bus, func(ctx context.Context, e event.TurnStartedEvent) {
		close(done)
	}, nil)
	defer sub.Unsubscribe()

	event.Publish(bus, event.TurnStartedEvent{RequestID: "req-1", Tool: "web", Model: "openai"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Expected event to be received")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(5)
	for range 5 {
		sub := event.Subscribe(bus, func(ctx context.Context, e event.ToolCallEvent) {
			wg.Done()
		}, nil)
		defer sub.Unsubscribe()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	event.Publish(bus, event.ToolCallEvent{RequestID: "req-1", CallID: "call-1", Tool: "url"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Expected all subscribers to be called")
	}
}

func TestBus_DifferentEventTypesAreIsolated(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	var started, failed atomic.Int32
	startedSub := event.Subscribe(bus, func(ctx context.Context, e event.TurnStartedEvent) {
		started.Add(1)
	}, nil)
	defer startedSub.Unsubscribe()
	failedSub := event.Subscribe(bus, func(ctx context.Context, e event.TurnFailedEvent) {
		failed.Add(1)
	}, nil)
	defer failedSub.Unsubscribe()

	event.Publish(bus, event.TurnStartedEvent{RequestID: "req-1"})
	event.Publish(bus, event.TurnStartedEvent{RequestID: "req-2"})

	deadline := time.After(time.Second)
	for started.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("started handler saw %d events, want 2", started.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if failed.Load() != 0 {
		t.Errorf("failed handler saw %d events, want 0", failed.Load())
	}
}

func TestBus_EventFilter(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	matched := make(chan event.ToolResultEvent, 2)
	sub := event.Subscribe(bus, func(ctx context.Context, e event.ToolResultEvent) {
		matched <- e
	}, func(e event.ToolResultEvent) bool {
		return !e.Succeeded
	})
	defer sub.Unsubscribe()

	event.Publish(bus, event.ToolResultEvent{RequestID: "req-1", CallID: "ok", Succeeded: true})
	event.Publish(bus, event.ToolResultEvent{RequestID: "req-1", CallID: "bad", Succeeded: false})

	select {
	case e := <-matched:
		if e.CallID != "bad" {
			t.Errorf("filter passed %q, want the failed call only", e.CallID)
		}
	case <-time.After(time.Second):
		t.Fatal("filtered event not delivered")
	}

	select {
	case e := <-matched:
		t.Errorf("unexpected second delivery: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SubscribeChannel(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	events, sub := event.SubscribeChannel[event.RoundCompletedEvent](bus, 4, nil)
	defer sub.Unsubscribe()

	event.Publish(bus, event.RoundCompletedEvent{RequestID: "req-1", Round: 1, ToolCalls: 2})

	select {
	case e := <-events:
		if e.Round != 1 || e.ToolCalls != 2 {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("channel subscriber received nothing")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	var count atomic.Int32
	sub := event.Subscribe(bus, func(ctx context.Context, e event.StreamStartedEvent) {
		count.Add(1)
	}, nil)

	event.Publish(bus, event.StreamStartedEvent{RequestID: "req-1"})
	deadline := time.After(time.Second)
	for count.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("first event not delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	sub.Unsubscribe()
	event.Publish(bus, event.StreamStartedEvent{RequestID: "req-2"})
	time.Sleep(50 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("handler called %d times, want 1 after unsubscribe", got)
	}
}

func TestBus_PanickingHandlerDoesNotStopWorkers(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	panicSub := event.Subscribe(bus, func(ctx context.Context, e event.TurnFailedEvent) {
		panic("handler bug")
	}, nil)
	defer panicSub.Unsubscribe()

	delivered := make(chan struct{})
	var once sync.Once
	okSub := event.Subscribe(bus, func(ctx context.Context, e event.TurnFailedEvent) {
		once.Do(func() { close(delivered) })
	}, nil)
	defer okSub.Unsubscribe()

	event.Publish(bus, event.TurnFailedEvent{RequestID: "req-1", ErrorType: "UNKNOWN_ERROR"})

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Error("sibling handler starved by a panicking one")
	}
}

func TestBus_SubscriberCount(t *testing.T) {
	t.Parallel()

	bus := event.NewBus(nil)
	defer bus.Close()

	if got := event.SubscriberCount[event.TurnStartedEvent](bus); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}

	sub := event.Subscribe(bus, func(ctx context.Context, e event.TurnStartedEvent) {}, nil)
	if got := event.SubscriberCount[event.TurnStartedEvent](bus); got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}
	sub.Unsubscribe()
	if got := event.SubscriberCount[event.TurnStartedEvent](bus); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after unsubscribe", got)
	}
}

func TestBus_MetricsRegistryAccepted(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	bus := event.NewBus(registry)
	defer bus.Close()

	event.Publish(bus, event.RoundCompletedEvent{RequestID: "req-1", Round: 1, Duration: 10 * time.Millisecond})

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sawPublished bool
	for _, family := range families {
		if family.GetName() == "eventbus_events_published_total" {
			sawPublished = true
		}
	}
	if !sawPublished {
		t.Error("published counter not registered")
	}
}
