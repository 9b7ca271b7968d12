// Package event provides the in-process publish/subscribe bus that carries
// scan lifecycle notifications between the scanner and its consumers.
package event

import (
	"context"
	"time"
)

// Event is a single notification on the bus.
type Event struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Handler processes an event. Handlers must not block for long; Publish
// calls them on the publisher's goroutine.
type Handler func(ctx context.Context, e Event)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber is the read side of the bus. The returned function removes the
// subscription.
type Subscriber interface {
	Subscribe(topic string, h Handler) func()
	SubscribeAll(h Handler) func()
}

// Bus combines both sides.
type Bus interface {
	Publisher
	Subscriber
}
