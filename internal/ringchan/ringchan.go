// Package ringchan provides a bounded channel with overwrite-oldest
// semantics. Hardware callback goroutines publish into it without ever
// blocking; slow consumers lose the oldest events, never the newest.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel and guarantees producers never block:
// when the buffer is full the oldest element is discarded.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over
// it until Close. Reads via C() bypass the Processed metric; use Receive or
// TryReceive when metrics matter.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// TrySend attempts a non-blocking insert. Returns false if the buffer is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.metrics.add(&rc.metrics.Written)
		return true
	default:
		return false
	}
}

// ForceSend inserts v, discarding the oldest element if needed. It never
// blocks. Returns true when an element was dropped to make room.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
		rc.metrics.add(&rc.metrics.Written)
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.add(&rc.metrics.Overwritten)
			dropped = true
		default:
		}
		rc.ch <- v
		rc.metrics.add(&rc.metrics.Written)
	}

	return dropped
}

// Receive blocks until a value is available or the channel is closed.
// The ok result is false if the channel is closed.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.add(&rc.metrics.Processed)
	}
	return
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.add(&rc.metrics.Processed)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. After this, sends panic.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// GetMetrics returns an atomic snapshot of the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for a RingChannel.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) add(field *int64) {
	atomic.AddInt64(field, 1)
}
