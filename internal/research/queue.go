package research

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrQueueClosed is returned by Enqueue after the queue has been closed.
var ErrQueueClosed = errors.New("research queue is closed")

// Queue is an unbounded FIFO of messages. Enqueue never blocks; Dequeue
// waits up to a poll timeout so the consumer can check for shutdown.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends m to the tail.
func (q *Queue) Enqueue(m Message) error {
	if m.kind == 0 {
		return errors.New("empty queue message")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.WithHint(ErrQueueClosed, "the worker is shutting down; retry after restart")
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.signal()
	return nil
}

// interrupt puts m at the head so it is the next message dequeued, even
// when the queue is closed.
func (q *Queue) interrupt(m Message) {
	q.mu.Lock()
	q.items = append([]Message{m}, q.items...)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head message. It waits up to timeout for
// one to arrive and returns false if none did or ctx ended first.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Message, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items[0] = Message{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return m, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return Message{}, false
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// Snapshot returns the queued jobs in order without removing them.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.items))
	for _, m := range q.items {
		if j, ok := m.Job(); ok {
			out = append(out, j)
		}
	}
	return out
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.items {
		if m.kind == kindWork {
			n++
		}
	}
	return n
}

// Close rejects further Enqueue calls. Queued messages stay dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns every queued job.
func (q *Queue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.items))
	for _, m := range q.items {
		if j, ok := m.Job(); ok {
			out = append(out, j)
		}
	}
	q.items = nil
	return out
}
