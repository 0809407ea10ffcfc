// Package folderlock serializes writers per folder. Folder aggregate updates
// are read-modify-write on centroid, exemplars and member count; two
// concurrent placements into the same folder must not interleave, while
// placements into different folders stay fully parallel.
package folderlock

import "sync"

// Guard hands out one mutex per folder id.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-folder mutex, creating it on first use. Locks are
// never evicted; the folder population is small relative to memory.
func (g *Guard) Lock(folderID string) {
	g.lockFor(folderID).Lock()
}

// Unlock releases the per-folder mutex.
func (g *Guard) Unlock(folderID string) {
	g.lockFor(folderID).Unlock()
}

func (g *Guard) lockFor(folderID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[folderID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[folderID] = l
	}
	return l
}
