package event

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

var _ Bus = (*MemoryBus)(nil)

type subscription struct {
	id      uint64
	handler Handler
}

// MemoryBus dispatches events to handlers registered in the same process.
type MemoryBus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	nextID   uint64
	byTopic  map[string][]subscription
	wildcard []subscription
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *MemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{
		logger:  logger,
		byTopic: make(map[string][]subscription),
	}
}

// Subscribe registers h for events published on topic.
func (b *MemoryBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.byTopic[topic] = append(b.byTopic[topic], subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byTopic[topic] = remove(b.byTopic[topic], id)
		if len(b.byTopic[topic]) == 0 {
			delete(b.byTopic, topic)
		}
	}
}

// SubscribeAll registers h for every event regardless of topic.
func (b *MemoryBus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = remove(b.wildcard, id)
	}
}

// Publish delivers e synchronously to topic subscribers, then to wildcard
// subscribers. A panicking handler is logged and does not stop delivery.
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	for _, h := range b.handlers(e.Topic) {
		b.invoke(ctx, h, e)
	}
	return nil
}

func (b *MemoryBus) handlers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.byTopic[topic])+len(b.wildcard))
	for _, s := range b.byTopic[topic] {
		out = append(out, s.handler)
	}
	for _, s := range b.wildcard {
		out = append(out, s.handler)
	}
	return out
}

func (b *MemoryBus) invoke(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", e.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, e)
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
