package notify

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueClosed = errors.New("notification queue closed")
	ErrQueueFull   = errors.New("notification queue full")
)

// Envelope is one message handed to a dispatcher. Ack or Nack must be called
// once the dispatcher is done with it.
type Envelope struct {
	Message Message
	Ack     func()
	Nack    func(requeue bool)
}

// Source yields queued messages in FIFO order.
type Source interface {
	Deliveries(ctx context.Context) (<-chan Envelope, error)
}

// MemoryQueue is the process-local queue. Enqueue never waits: a full buffer
// drops the message. Anything still buffered when the process exits is lost.
type MemoryQueue struct {
	ch     chan Envelope
	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{ch: make(chan Envelope, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	env := Envelope{Message: m, Ack: func() {}, Nack: func(bool) {}}
	select {
	case q.ch <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Deliveries(context.Context) (<-chan Envelope, error) {
	return q.ch, nil
}

// Len reports how many messages are waiting.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close stops accepting messages; buffered ones are still delivered.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
