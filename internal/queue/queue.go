// Package queue implements the unbounded FIFO queues that connect a consumer to a driver.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

var (
	// ErrEmpty is returned by TryRecv when no value is buffered.
	ErrEmpty = errors.New("queue: empty")
	// ErrDisconnected is returned by receive operations once the sender is closed and every
	// buffered value was returned, or once the receiver itself was closed.
	ErrDisconnected = errors.New("queue: disconnected")
)

// state is shared by both ends of one queue.
type state[T any] struct {
	mu         sync.Mutex
	items      deque.Deque[T]
	ready      chan struct{}
	done       chan struct{}
	sendClosed bool
	recvClosed bool
}

// Sender is the producing end of a queue. It is safe for concurrent use.
type Sender[T any] struct {
	s *state[T]
}

// Receiver is the consuming end of a queue. It is safe for concurrent use.
type Receiver[T any] struct {
	s *state[T]
}

// New creates an unbounded queue and returns its two ends.
func New[T any]() (*Sender[T], *Receiver[T]) {
	s := &state[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// notify wakes a receiver waiting on Ready. Signals coalesce.
func (s *state[T]) notify() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// hangUp closes done the first time either end is closed. Callers hold mu.
func (s *state[T]) hangUp() {
	if !s.sendClosed && !s.recvClosed {
		close(s.done)
	}
}

// TrySend appends v to the queue. It never blocks.
//
// Returns false, leaving the queue untouched, when the receiver is closed or Close was called
// on the sender.
func (q *Sender[T]) TrySend(v T) bool {
	q.s.mu.Lock()
	if q.s.sendClosed || q.s.recvClosed {
		q.s.mu.Unlock()
		return false
	}
	q.s.items.PushBack(v)
	q.s.mu.Unlock()

	q.s.notify()
	return true
}

// Close marks the sender as gone. The receiver still returns buffered values before reporting
// ErrDisconnected. Close is idempotent.
func (q *Sender[T]) Close() {
	q.s.mu.Lock()
	if q.s.sendClosed {
		q.s.mu.Unlock()
		return
	}
	q.s.hangUp()
	q.s.sendClosed = true
	q.s.mu.Unlock()

	q.s.notify()
}

// Closed reports whether the queue accepts no more values.
func (q *Sender[T]) Closed() bool {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	return q.s.sendClosed || q.s.recvClosed
}

// Len returns the number of buffered values.
func (q *Sender[T]) Len() int {
	return q.s.len()
}

// TryRecv returns the oldest buffered value. It never blocks.
func (q *Receiver[T]) TryRecv() (T, error) {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	var zero T
	if q.s.recvClosed {
		return zero, ErrDisconnected
	}
	if q.s.items.Len() > 0 {
		return q.s.items.PopFront(), nil
	}
	if q.s.sendClosed {
		return zero, ErrDisconnected
	}
	return zero, ErrEmpty
}

// Recv waits for the oldest buffered value.
//
// Returns ErrDisconnected once the queue is drained and the sender is closed, or ctx.Err() when
// ctx is done first.
func (q *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, err := q.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			return v, err
		}

		select {
		case <-q.s.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Ready returns a channel that receives a signal after values are pushed or the sender closes.
//
// Several pushes may collapse into one signal, so a receiver woken by Ready must call TryRecv
// until ErrEmpty before waiting again.
func (q *Receiver[T]) Ready() <-chan struct{} {
	return q.s.ready
}

// Done returns a channel closed once either end is closed. Values buffered before the sender
// closed may still be pending.
func (q *Receiver[T]) Done() <-chan struct{} {
	return q.s.done
}

// Close marks the receiver as gone and discards buffered values. Further TrySend calls fail.
// Close is idempotent.
func (q *Receiver[T]) Close() {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()

	if q.s.recvClosed {
		return
	}
	q.s.hangUp()
	q.s.recvClosed = true
	q.s.items.Clear()
}

// Len returns the number of buffered values.
func (q *Receiver[T]) Len() int {
	return q.s.len()
}

func (s *state[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}
