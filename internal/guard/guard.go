// Package guard provides keyed, non-blocking mutual exclusion for commit attempts.
package guard

import (
	"sync"

	"github.com/EagleChen/mapmutex"
)

// IndependentKey scopes the "create independent result" entry point. Only one
// such creation may be in flight at a time, across all results.
const IndependentKey = "independent-result"

// ResultKey returns the guard key of a single production result.
func ResultKey(localID string) string {
	return "result:" + localID
}

// Guard hands out at most one holder per key. TryAcquire never waits for a
// holder to finish; callers must report "busy" instead of queueing.
type Guard struct {
	locks *mapmutex.Mutex

	mu   sync.Mutex
	held map[string]struct{}
}

// New creates a guard whose acquisition makes exactly one attempt.
func New() *Guard {
	return &Guard{
		// one attempt, 1ns base delay, 1µs cap
		locks: mapmutex.NewCustomizedMapMutex(1, 1000, 1, 1.1, 0),
		held:  make(map[string]struct{}),
	}
}

// TryAcquire takes the key if nobody holds it.
func (g *Guard) TryAcquire(key string) bool {
	if !g.locks.TryLock(key) {
		return false
	}
	g.mu.Lock()
	g.held[key] = struct{}{}
	g.mu.Unlock()
	return true
}

// Release frees the key. It reports false when the key was not held, which
// means the caller released twice.
func (g *Guard) Release(key string) bool {
	g.mu.Lock()
	_, ok := g.held[key]
	delete(g.held, key)
	g.mu.Unlock()
	if !ok {
		return false
	}
	g.locks.Unlock(key)
	return true
}

// Held reports whether key is currently taken.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

// Len returns the number of keys currently held.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
