package syncer

import "sync"

// gate serializes merges of one run. Once sealed every further write is dropped.
type gate struct {
	mu     sync.Mutex
	sealed bool
}

// do runs fn under the gate unless the run is already sealed.
func (g *gate) do(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		return false
	}
	fn()
	return true
}

func (g *gate) seal() {
	g.mu.Lock()
	g.sealed = true
	g.mu.Unlock()
}

func (g *gate) isSealed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sealed
}
