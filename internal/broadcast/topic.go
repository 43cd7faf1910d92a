// Package broadcast provides a single hot, multi-subscriber, non-blocking
// publish primitive used for every producer stream in the gateway
// (reads$, datapoints$, heart_rate$). A slow subscriber drops notifications
// instead of blocking the producer.
package broadcast

import (
	"sync/atomic"

	"github.com/cskr/pubsub"
)

const topicName = "v"

// bufferSize bounds how far a subscriber may lag before further
// notifications to it are dropped; the notifications already buffered
// are kept.
const bufferSize = 64

// Topic is a generic hot broadcast channel for values of type T.
type Topic[T any] struct {
	ps      *pubsub.PubSub
	dropped atomic.Int64
	closed  atomic.Bool
}

// NewTopic creates an empty broadcast topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{ps: pubsub.New(bufferSize)}
}

// Publish delivers v to every current subscriber without blocking. If a
// subscriber's buffer is full, that subscriber's notification is dropped
// and the Dropped counter increments; the producer never blocks or errors.
func (t *Topic[T]) Publish(v T) {
	if t.closed.Load() {
		return
	}
	t.ps.TryPub(v, topicName)
}

// Subscribe registers a new weak observer and returns a receive channel
// plus a function that unsubscribes and releases it.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	raw := t.ps.Sub(topicName)
	out := make(chan T, bufferSize)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case v, ok := <-raw:
				if !ok {
					close(out)
					return
				}
				typed, ok := v.(T)
				if !ok {
					t.dropped.Add(1)
					continue
				}
				select {
				case out <- typed:
				default:
					t.dropped.Add(1)
				}
			case <-done:
				return
			}
		}
	}()
	unsub := func() {
		close(done)
		if !t.closed.Load() {
			t.ps.Unsub(raw, topicName)
		}
	}
	return out, unsub
}

// Dropped reports the number of notifications dropped across all
// subscribers so far, as a metric only — never as an error.
func (t *Topic[T]) Dropped() int64 { return t.dropped.Load() }

// Close shuts down the underlying broker. Publish becomes a no-op and all
// subscriber channels are closed.
func (t *Topic[T]) Close() {
	if t.closed.CompareAndSwap(false, true) {
		t.ps.Shutdown()
	}
}
