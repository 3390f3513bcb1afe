package api

import (
	"context"
	"errors"
	"sync"
)

// ErrEndOfStream is returned by Channel.Next once a channel has been closed
// and every buffered item has been consumed.
var ErrEndOfStream = errors.New("end of stream")

// Channel is an ordered, asynchronous, completion-aware stream of items.
//
// Send never blocks: items are buffered until a consumer calls Next. A single
// consumer observes a producer's items in the order they were sent; items
// sent by distinct producers carry no relative ordering guarantee. Close is
// idempotent and marks that no further items will arrive; consumers then
// drain the remaining buffer and finally observe ErrEndOfStream.
type Channel struct {
	mu     sync.Mutex
	name   string
	items  []any
	closed bool

	// wake is closed and replaced whenever the channel state changes, so
	// that every blocked Next call re-checks the buffer.
	wake chan struct{}
}

// NewChannel creates an empty, open channel.
func NewChannel() *Channel {
	return &Channel{wake: make(chan struct{})}
}

// NamedChannel creates an empty channel carrying a name, as used by the
// pipeline's channel registry.
func NamedChannel(name string) *Channel {
	ch := NewChannel()
	ch.name = name
	return ch
}

// ChannelOf creates a channel pre-loaded with the given values and already
// closed. Convenient for fixed source collections and tests.
func ChannelOf(values ...any) *Channel {
	ch := NewChannel()
	for _, v := range values {
		ch.Send(v)
	}
	ch.Close()
	return ch
}

// Name returns the registry name of the channel, or "" for anonymous channels.
func (c *Channel) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Send enqueues an item. It never blocks. Sending on a closed channel is a
// no-op; the item is dropped rather than panicking, since a pipeline abort
// closes channels while producers may still be running.
func (c *Channel) Send(item any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.items = append(c.items, item)
	c.broadcast()
}

// Close marks the channel as complete. It is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.broadcast()
}

// Closed reports whether Close has been called. Buffered items may still be
// pending even when Closed returns true.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of buffered, unconsumed items.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Next returns the next item, blocking until one is available, the channel
// is closed and drained (ErrEndOfStream), or ctx is cancelled.
func (c *Channel) Next(ctx context.Context) (any, error) {
	c.mu.Lock()
	for {
		if len(c.items) > 0 {
			item := c.items[0]
			c.items = c.items[1:]
			c.mu.Unlock()
			return item, nil
		}
		if c.closed {
			c.mu.Unlock()
			return nil, ErrEndOfStream
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
	}
}

// Collect drains the channel until it closes and returns every item in
// arrival order. It blocks until the channel is closed or ctx is cancelled.
func (c *Channel) Collect(ctx context.Context) ([]any, error) {
	var out []any
	for {
		item, err := c.Next(ctx)
		if errors.Is(err, ErrEndOfStream) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
}

// broadcast wakes every blocked Next call. Caller must hold mu.
func (c *Channel) broadcast() {
	close(c.wake)
	c.wake = make(chan struct{})
}
