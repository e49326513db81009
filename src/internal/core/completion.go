package core

import (
	"context"
	"sync"
)

// Completion is the single-settlement result of one transfer. It resolves
// with a nil error on success or a *TransferError on failure.
type Completion struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	settled   bool
	callbacks []func(error)
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// settle resolves the completion. Only the first call has any effect; it
// reports whether this call settled it.
func (c *Completion) settle(err error) bool {
	c.mu.Lock()
	if c.settled {
		c.mu.Unlock()
		return false
	}

	c.settled = true
	c.err = err
	callbacks := c.callbacks
	c.callbacks = nil
	close(c.done)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(err)
	}

	return true
}

// Done returns a channel closed once the completion settles.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the settlement error; it is nil before settlement and on success.
func (c *Completion) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Settled reports whether the completion has resolved.
func (c *Completion) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.settled
}

// Wait blocks until the completion settles or ctx ends.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnSettle registers fn to run with the settlement error. Callbacks run on
// the goroutine that settles, which for transfers is the reactor loop; if
// the completion has already settled fn runs immediately.
func (c *Completion) OnSettle(fn func(error)) {
	c.mu.Lock()
	if !c.settled {
		c.callbacks = append(c.callbacks, fn)
		c.mu.Unlock()

		return
	}

	err := c.err
	c.mu.Unlock()

	fn(err)
}
