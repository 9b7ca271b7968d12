package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	var received Event

	bus.Subscribe("scanner.host.probed", func(ctx context.Context, e Event) {
		received = e
	})

	event := Event{
		Topic:     "scanner.host.probed",
		Source:    "test",
		Timestamp: time.Now(),
		Payload:   "hello",
	}

	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if received.Topic != "scanner.host.probed" {
		t.Errorf("received.Topic = %q, want %q", received.Topic, "scanner.host.probed")
	}
	if received.Payload != "hello" {
		t.Errorf("received.Payload = %v, want %q", received.Payload, "hello")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(testLogger())
	var count int32

	bus.SubscribeAll(func(ctx context.Context, e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.Publish(context.Background(), Event{Topic: "a"})
	bus.Publish(context.Background(), Event{Topic: "b"})

	if got := atomic.LoadInt32(&count); got != 2 {
		t.Errorf("SubscribeAll handler called %d times, want 2", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	var count int32

	unsub := bus.Subscribe("test", func(ctx context.Context, e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.Publish(context.Background(), Event{Topic: "test"})
	unsub()
	bus.Publish(context.Background(), Event{Topic: "test"})

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("handler called %d times after unsubscribe, want 1", got)
	}
}

func TestUnsubscribeAll(t *testing.T) {
	bus := NewBus(testLogger())
	var count int32

	unsub := bus.SubscribeAll(func(ctx context.Context, e Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.Publish(context.Background(), Event{Topic: "test"})
	unsub()
	bus.Publish(context.Background(), Event{Topic: "test"})

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("handler called %d times after unsubscribe, want 1", got)
	}
}

func TestHandlerPanicRecovery(t *testing.T) {
	bus := NewBus(testLogger())
	var count int32

	bus.Subscribe("panic.test", func(ctx context.Context, e Event) {
		panic("test panic")
	})
	bus.Subscribe("panic.test", func(ctx context.Context, e Event) {
		atomic.AddInt32(&count, 1)
	})

	// Should not panic, and second handler should still run.
	bus.Publish(context.Background(), Event{Topic: "panic.test"})

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Errorf("second handler called %d times, want 1", got)
	}
}

func TestNoSubscribersOK(t *testing.T) {
	bus := NewBus(testLogger())

	// Publishing with no subscribers should not error.
	if err := bus.Publish(context.Background(), Event{Topic: "empty"}); err != nil {
		t.Fatalf("Publish() with no subscribers error = %v", err)
	}
}

func TestPublishOrder_TopicBeforeWildcard(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	var order []string

	bus.SubscribeAll(func(ctx context.Context, e Event) {
		mu.Lock()
		order = append(order, "all")
		mu.Unlock()
	})
	bus.Subscribe("scanner.scan.started", func(ctx context.Context, e Event) {
		mu.Lock()
		order = append(order, "topic")
		mu.Unlock()
	})

	_ = bus.Publish(context.Background(), Event{Topic: "scanner.scan.started"})

	if len(order) != 2 || order[0] != "topic" || order[1] != "all" {
		t.Errorf("delivery order = %v, want [topic all]", order)
	}
}

func TestUnsubscribeOneOfMany(t *testing.T) {
	bus := NewBus(testLogger())
	var first, second int32

	unsub := bus.Subscribe("x", func(ctx context.Context, e Event) { atomic.AddInt32(&first, 1) })
	bus.Subscribe("x", func(ctx context.Context, e Event) { atomic.AddInt32(&second, 1) })

	unsub()
	unsub()
	_ = bus.Publish(context.Background(), Event{Topic: "x"})

	if atomic.LoadInt32(&first) != 0 || atomic.LoadInt32(&second) != 1 {
		t.Errorf("first=%d second=%d, want 0 and 1", first, second)
	}
}
