// Package messaging defines a minimal generic queue abstraction used to fan
// out gate lifecycle events to interested consumers (UIs, waiters, tests).
package messaging

import (
	"context"
)

// Queue is an abstract message queue for any payload type.
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue, blocking while
	// the queue is full.
	Publish(ctx context.Context, t *T) error

	// TryPublish adds a new message without blocking.  It reports false
	// when the queue is full; the message is dropped.  Publishers on hot
	// paths use this so a slow or absent consumer cannot stall them.
	TryPublish(ctx context.Context, t *T) (bool, error)

	// Consume retrieves a single message, blocking until one is available
	// or ctx is done.
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue.
type Message[T any] interface {
	// T returns the payload of this message.
	T() *T

	// Ack acknowledges successful processing of this message.
	Ack() error

	// Nack indicates failure in processing this message.
	Nack(err error) error
}
