// Package fanout provides hot broadcast streams for pipeline observers.
//
// A Broadcaster delivers every published value to every subscriber channel.
// Sends never block: a subscriber that has fallen behind loses values rather
// than stalling the publisher. With replay enabled, a late subscriber
// synchronously receives the most recent value before any new ones.
package fanout

import "sync"

const defaultBuffer = 100

type config struct {
	replay bool
	buffer int
}

// Option configures a Broadcaster.
type Option func(*config)

// WithReplay retains the last published value and delivers it to new
// subscribers at subscription time.
func WithReplay() Option {
	return func(c *config) { c.replay = true }
}

// WithBuffer sets the per-subscriber channel buffer.
func WithBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Broadcaster fans published values out to subscriber channels.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs []chan T
	last *T
	cfg  config
}

// New creates a Broadcaster.
func New[T any](opts ...Option) *Broadcaster[T] {
	cfg := config{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Broadcaster[T]{cfg: cfg}
}

// Subscribe registers a new subscriber channel. The caller must call
// Unsubscribe when done to prevent resource leaks.
func (b *Broadcaster[T]) Subscribe() <-chan T {
	ch := make(chan T, b.cfg.buffer)
	b.mu.Lock()
	if b.cfg.replay && b.last != nil {
		ch <- *b.last // fresh buffered channel, cannot block
	}
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Subscribe.
// The channel is not closed; after Unsubscribe returns, no further values
// will be sent to it.
func (b *Broadcaster[T]) Unsubscribe(ch <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to all subscribers.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	if b.cfg.replay {
		b.last = &v
	}
	subs := make([]chan T, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- v:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// Last returns the retained value, if replay is enabled and anything has
// been published.
func (b *Broadcaster[T]) Last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		var zero T
		return zero, false
	}
	return *b.last, true
}
