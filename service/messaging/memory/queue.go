package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchgate/patchgate/service/messaging"
)

// Config for the in-memory queue.
type Config struct {
	MaxRetries  int
	RetryDelay  time.Duration
	QueueBuffer int
}

// DefaultConfig returns a standard configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  100 * time.Millisecond,
		QueueBuffer: 100,
	}
}

// Queue implements messaging.Queue on top of a buffered channel.  Nacked
// messages are redelivered up to MaxRetries times and then dropped into a
// dead-letter slice kept for inspection.
type Queue[T any] struct {
	messages chan *message[T]
	config   Config

	dlqMu sync.Mutex
	dlq   []*message[T]
}

type message[T any] struct {
	id        string
	payload   T
	queue     *Queue[T]
	attempts  int
	mu        sync.Mutex
	processed bool
}

// NewQueue creates a new in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *message[T], config.QueueBuffer),
		config:   config,
	}
}

// Publish adds a new item to the queue.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	msg := &message[T]{
		id:      uuid.New().String(),
		payload: *t,
		queue:   q,
	}
	select {
	case q.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish adds a new item without blocking, reporting false when the
// buffer is full.
func (q *Queue[T]) TryPublish(ctx context.Context, t *T) (bool, error) {
	msg := &message[T]{
		id:      uuid.New().String(),
		payload: *t,
		queue:   q,
	}
	select {
	case q.messages <- msg:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	default:
		return false, nil
	}
}

// Consume retrieves a single item from the queue.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of buffered messages.
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DLQSize returns the number of dead-lettered messages.
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

func (m *message[T]) T() *T {
	return &m.payload
}

func (m *message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

func (m *message[T]) Nack(_ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	m.attempts++

	if m.attempts > m.queue.config.MaxRetries {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, m)
		m.queue.dlqMu.Unlock()
		return nil
	}

	// Redeliver after the retry delay with a fresh processed flag.
	go func() {
		time.Sleep(m.queue.config.RetryDelay)
		retry := &message[T]{
			id:       m.id,
			payload:  m.payload,
			queue:    m.queue,
			attempts: m.attempts,
		}
		m.queue.messages <- retry
	}()
	return nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
