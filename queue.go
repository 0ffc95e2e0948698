package qnet

import (
	"context"
	"sync"
	"time"
)

// Queue is the generic queue-bridge primitive used for every user-facing
// surface this package exposes: the inbound Event queue, the outbound
// payload queue, and a listener's accept queue of *Handle values (§4.4).
//
// It is deliberately not a plain Go channel: spec.md's option table lets a
// caller choose an unbounded queue (the default) or a bounded one, and a
// bounded Queue must let a producer block without blocking anything else —
// in particular without blocking the reactor's own pump goroutines (§5).
//
// The design mirrors smux's bucket/bucketNotify pattern: a mutex-protected
// slice holds the actual items, and a buffered-1 "doorbell" channel wakes up
// anyone waiting on an empty/full queue without needing a full condition
// variable.
type Queue[T any] struct {
	capacity int // 0 means unbounded

	mu     sync.Mutex
	items  []T
	closed bool

	notify     chan struct{} // signaled on Push/Close (item became available)
	notifySent chan struct{} // signaled on Pop/Close (space became available)
	done       chan struct{} // closed exactly once, when Close is called
}

// NewQueue returns an unbounded Queue[T].
func NewQueue[T any]() *Queue[T] {
	return NewBoundedQueue[T](0)
}

// NewBoundedQueue returns a Queue[T] that blocks PushBlocking once it holds
// capacity items. A capacity of 0 means unbounded.
func NewBoundedQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{
		capacity:   capacity,
		notify:     make(chan struct{}, 1),
		notifySent: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (q *Queue[T]) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Push enqueues v without blocking. It returns false if the queue is closed
// or (for a bounded queue) already at capacity; callers that need to block
// until space is available should use PushBlocking.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed || (q.capacity > 0 && len(q.items) >= q.capacity) {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.signal(q.notify)
	return true
}

// PushBlocking enqueues v, blocking while the queue is at capacity. It
// returns false only if the queue is closed.
func (q *Queue[T]) PushBlocking(v T) bool {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return false
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			q.mu.Unlock()
			q.signal(q.notify)
			return true
		}
		q.mu.Unlock()
		select {
		case <-q.notifySent:
		case <-q.done:
		}
	}
}

// tryPop attempts a non-blocking dequeue. ok reports whether a value was
// returned; closed reports whether the queue is closed and empty (meaning no
// further values will ever arrive).
func (q *Queue[T]) tryPop() (v T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		v = q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		ok = true
		return
	}
	closed = q.closed
	return
}

func (q *Queue[T]) afterPop() {
	q.signal(q.notifySent)
}

// Pop blocks until a value is available, the queue is closed, or ctx is
// done. ok is false in the latter two cases.
func (q *Queue[T]) Pop(ctx context.Context) (v T, ok bool) {
	for {
		val, got, closed := q.tryPop()
		if got {
			q.afterPop()
			return val, true
		}
		if closed {
			return v, false
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return v, false
		}
	}
}

// PopTimeout blocks until a value is available, the queue closes, or d
// elapses, whichever comes first. timedOut is true only in the last case.
func (q *Queue[T]) PopTimeout(d time.Duration) (v T, ok bool, timedOut bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		val, got, closed := q.tryPop()
		if got {
			q.afterPop()
			return val, true, false
		}
		if closed {
			return v, false, false
		}
		select {
		case <-q.notify:
			continue
		case <-timer.C:
			return v, false, true
		}
	}
}

// Close marks the queue closed. Already-enqueued items remain poppable;
// once drained, further Pop calls report ok=false. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	select {
	case <-q.done:
	default:
		close(q.done)
	}
	q.signal(q.notify)
	q.signal(q.notifySent)
}

// Done returns a channel that's closed once Close has been called, letting a
// caller select on "this queue was closed" without polling IsClosed.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// IsClosed reports whether Close has been called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
