package buffer

import (
	"context"
	"sync"
	"time"
)

// coordinator is the monitor guarding one buffer. Waiters park on the
// current wake channel; broadcast closes it, so every waiter parked before
// the broadcast is released exactly once. The channel is only made when
// somebody waits.
type coordinator struct {
	mu   sync.Mutex
	wake chan struct{}
}

func newCoordinator() *coordinator {
	return &coordinator{}
}

func (c *coordinator) lock()   { c.mu.Lock() }
func (c *coordinator) unlock() { c.mu.Unlock() }

// broadcast wakes every waiter. The caller must hold the lock.
func (c *coordinator) broadcast() {
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}
}

// wait releases the lock until the next broadcast, the deadline or the end
// of ctx, then reacquires it. A zero deadline never expires. It reports
// false once the deadline has passed and returns ctx.Err() if ctx is done.
// The caller must hold the lock.
func (c *coordinator) wait(ctx context.Context, deadline time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var expired <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return false, nil
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	if c.wake == nil {
		c.wake = make(chan struct{})
	}
	wake := c.wake
	c.mu.Unlock()
	defer c.mu.Lock()

	select {
	case <-wake:
		return true, nil
	case <-expired:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// waitFor waits until ready returns true, re-checking it after every wake.
// It reports whether ready held when it returned; the deadline is absolute,
// so repeated wakes never extend it. The caller must hold the lock.
func (c *coordinator) waitFor(ctx context.Context, deadline time.Time, ready func() bool) (bool, error) {
	for !ready() {
		woken, err := c.wait(ctx, deadline)
		if err != nil {
			return false, err
		}
		if !woken {
			return ready(), nil
		}
	}
	return true, nil
}

// deadlineAfter turns a relative timeout into an absolute deadline. A zero
// or negative timeout yields no deadline.
func deadlineAfter(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
