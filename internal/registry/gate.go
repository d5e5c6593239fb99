package registry

import (
	"context"
	"sync"
)

// PauseGate is a two-state latch coordinating the AssetManager's
// swap-in-progress window against the pipeline's event entry point.
// At most one writer toggles it (AssetManager, plus the startup
// sequence before the first asset fetch completes); any number of
// readers call Wait at pipeline entry. The gate starts closed.
type PauseGate struct {
	mu     sync.Mutex
	open   bool
	opened chan struct{}
}

func NewPauseGate() *PauseGate {
	return &PauseGate{opened: make(chan struct{})}
}

// Wait blocks until the gate is open, or ctx is done.
func (g *PauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	if g.open {
		g.mu.Unlock()
		return nil
	}
	ch := g.opened
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close lowers the gate, blocking new Wait callers until Open.
func (g *PauseGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.opened = make(chan struct{})
}

// Open raises the gate, releasing every blocked and future Wait
// caller until the next Close.
func (g *PauseGate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.opened)
}

func (g *PauseGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}
