// Package gate provides the world-wide refresh gate: a flag that is raised
// while a bulk dataset rebuild runs and that dependent readers wait out.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Wait when the gate stays raised past the deadline.
var ErrTimeout = errors.New("refresh gate wait timed out")

// Gate is a cooperative availability delay, not a lock. Wait blocks while a
// refresh is active but does not acquire anything, so the gate may be raised
// again the moment Wait returns.
//
// The zero value is not usable; call New.
type Gate struct {
	mu     sync.Mutex
	active bool
	// cleared is closed when the current refresh ends. While the gate is
	// down it is an already-closed channel.
	cleared chan struct{}
}

// New returns a lowered Gate.
func New() *Gate {
	c := make(chan struct{})
	close(c)
	return &Gate{cleared: c}
}

// Begin raises the gate. If a refresh is already active, Begin waits for it
// to end first so bulk operations run one after another.
//
// Postcondition: The gate is raised; the caller must call End.
func (g *Gate) Begin(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.active {
			g.active = true
			g.cleared = make(chan struct{})
			g.mu.Unlock()
			return nil
		}
		wait := g.cleared
		g.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// End lowers the gate and wakes every waiter. Calling End on a lowered gate is a no-op.
func (g *Gate) End() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return
	}
	g.active = false
	close(g.cleared)
}

// Active reports whether a refresh is in progress.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Wait blocks until the gate is lowered, ctx is done, or timeout elapses.
// A non-positive timeout waits on ctx alone.
//
// Postcondition: Returns nil once the gate was observed lowered, ErrTimeout on
// timeout, or ctx.Err() on cancellation.
func (g *Gate) Wait(ctx context.Context, timeout time.Duration) error {
	g.mu.Lock()
	wait := g.cleared
	g.mu.Unlock()

	select {
	case <-wait:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-wait:
		return nil
	case <-expired:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
