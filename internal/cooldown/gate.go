package cooldown

import (
	"context"
	"sync"
)

// Gate is a broadcast pause switch for worker loops. The convention is
// inverted on purpose: an open gate holds a closed channel, so the steady
// state costs waiters a single channel receive and no lock. Pausing swaps in
// a fresh channel that everyone blocks on until Resume closes it.
type Gate struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	g := &Gate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

// Pause shuts the gate. Idempotent.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
		// already paused
	}
}

// Resume opens the gate, waking every waiter at once. Idempotent.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		// already open
	default:
		close(g.ch)
	}
}

// Ready returns a channel that is closed while the gate is open. Callers
// needing to race the gate against other signals select on it directly.
func (g *Gate) Ready() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}

// Wait blocks until the gate is open or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open reports the current position without blocking.
func (g *Gate) Open() bool {
	select {
	case <-g.Ready():
		return true
	default:
		return false
	}
}
