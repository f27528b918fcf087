// Package watch provides a single-writer, multi-reader cell holding the latest
// value of T.
//
// A Producer replaces the value wholesale with Update. Every Consumer keeps its
// own cursor, so it never observes the same update twice through Next. Readers
// that only care about the current state use When, which ignores the cursor.
// Intermediate values may be skipped when the producer updates faster than a
// consumer reads: only the latest value is retained.
//
// Close ends the cell gracefully. Consumers still receive values they have not
// seen and then io.EOF. Abort ends the cell with a reason that is returned to
// every consumer immediately.
package watch

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrClosed is returned by producer methods after Close or Abort, and by
	// consumer methods after the consumer itself was closed.
	ErrClosed = errors.New("watch: closed")

	// ErrAborted is the reason used when Abort is called with a nil error.
	ErrAborted = errors.New("watch: aborted")
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type state[T any] struct {
	mu sync.Mutex

	value T
	epoch uint64

	// notify is closed and replaced on every update.
	notify chan struct{}

	closed bool
	err    error
	done   chan struct{}

	consumers int
	unused    chan struct{}
}

// New creates a Producer holding initial.
func New[T any](initial T) *Producer[T] {
	return &Producer[T]{
		s: &state[T]{
			value:  initial,
			notify: make(chan struct{}),
			done:   make(chan struct{}),
			unused: closedChan,
		},
	}
}

// Producer is the writing half of a watch.
type Producer[T any] struct {
	s *state[T]
}

// Update replaces the current value.
func (p *Producer[T]) Update(v T) error {
	return p.UpdateFunc(func(T) T { return v })
}

// UpdateFunc replaces the current value with the result of fn.
// fn is called with the internal lock held and must not block.
func (p *Producer[T]) UpdateFunc(fn func(T) T) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.value = fn(s.value)
	s.epoch++
	close(s.notify)
	s.notify = make(chan struct{})

	return nil
}

// Value returns the current value.
func (p *Producer[T]) Value() T {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.value
}

// Close ends the watch gracefully.
func (p *Producer[T]) Close() error {
	return p.finish(nil)
}

// Abort ends the watch with the given reason.
func (p *Producer[T]) Abort(reason error) error {
	if reason == nil {
		reason = ErrAborted
	}
	return p.finish(reason)
}

func (p *Producer[T]) finish(reason error) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.closed = true
	s.err = reason
	close(s.notify)
	close(s.done)

	return nil
}

// Done returns a channel closed once the watch is closed or aborted.
func (p *Producer[T]) Done() <-chan struct{} {
	return p.s.done
}

// Err returns the abort reason, or nil while open or after a graceful close.
func (p *Producer[T]) Err() error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.err
}

// Unused returns a channel that is closed while no consumer is alive.
// A new channel is armed whenever the count rises from zero, so callers should
// fetch it again after handing out consumers.
func (p *Producer[T]) Unused() <-chan struct{} {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.unused
}

// Consumers returns the number of live consumers.
func (p *Producer[T]) Consumers() int {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.consumers
}

// Consume creates a consumer whose first Next returns the current value.
func (p *Producer[T]) Consume() *Consumer[T] {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.newConsumer(s.epoch)
}

// newConsumer must be called with s.mu held.
func (s *state[T]) newConsumer(next uint64) *Consumer[T] {
	s.consumers++
	if s.consumers == 1 {
		s.unused = make(chan struct{})
	}

	return &Consumer[T]{
		s:       s,
		next:    next,
		closing: make(chan struct{}),
	}
}

// Consumer is a reading half of a watch with its own cursor.
type Consumer[T any] struct {
	s *state[T]

	// next is the first epoch not yet delivered. Guarded by s.mu.
	next    uint64
	closed  bool
	closing chan struct{}
}

// Value returns the current value without moving the cursor.
func (c *Consumer[T]) Value() T {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.value
}

// Next waits for a value the consumer has not seen yet for which pred reports
// true. A nil pred accepts any value.
func (c *Consumer[T]) Next(ctx context.Context, pred func(T) bool) (T, error) {
	return c.wait(ctx, pred, true)
}

// When returns the current value if pred reports true for it, or waits for an
// update for which it does.
func (c *Consumer[T]) When(ctx context.Context, pred func(T) bool) (T, error) {
	return c.wait(ctx, pred, false)
}

// TryNext is the non-blocking form of Next.
func (c *Consumer[T]) TryNext(pred func(T) bool) (T, bool, error) {
	v, ok, _, err := c.poll(pred, true)
	return v, ok, err
}

// TryWhen is the non-blocking form of When.
func (c *Consumer[T]) TryWhen(pred func(T) bool) (T, bool, error) {
	v, ok, _, err := c.poll(pred, false)
	return v, ok, err
}

func (c *Consumer[T]) wait(ctx context.Context, pred func(T) bool, fresh bool) (T, error) {
	for {
		v, ok, changed, err := c.poll(pred, fresh)
		if err != nil || ok {
			return v, err
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-c.closing:
		case <-changed:
		}
	}
}

func (c *Consumer[T]) poll(pred func(T) bool, fresh bool) (v T, ok bool, changed <-chan struct{}, err error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return v, false, nil, ErrClosed
	}

	if s.err != nil {
		return v, false, nil, s.err
	}

	if !fresh || s.epoch >= c.next {
		c.next = s.epoch + 1
		if pred == nil || pred(s.value) {
			return s.value, true, nil, nil
		}
	}

	if s.closed {
		return v, false, nil, io.EOF
	}

	return v, false, s.notify, nil
}

// Changed returns a channel that is closed once there is something for Next
// to report: an unseen update, or the end of the watch.
func (c *Consumer[T]) Changed() <-chan struct{} {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed || s.closed || s.epoch >= c.next {
		return closedChan
	}
	return s.notify
}

// Clone creates an independent consumer sharing this consumer's cursor.
func (c *Consumer[T]) Clone() *Consumer[T] {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.newConsumer(c.next)
}

// Close releases the consumer. Other consumers are unaffected.
func (c *Consumer[T]) Close() {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.closing)

	s.consumers--
	if s.consumers == 0 {
		close(s.unused)
	}
}

// Done returns a channel closed once the producer is closed or aborted.
func (c *Consumer[T]) Done() <-chan struct{} {
	return c.s.done
}

// Err returns the abort reason of the producer, or nil.
func (c *Consumer[T]) Err() error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.err
}
