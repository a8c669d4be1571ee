package access

import (
	"sync"
	"time"
)

// fixGuard serializes a recovery action (challenge solve, identity
// rotation) across goroutines. Whoever holds the lock performs the fix;
// everyone who was already blocked on the lock when a fix landed skips its
// own redundant attempt.
type fixGuard struct {
	mu      sync.Mutex
	lastFix time.Time
}

// do runs fix unless another goroutine completed one after this caller
// observed the failure at start. Returns the fix result, or true when the
// fix was skipped as already handled.
func (g *fixGuard) do(start time.Time, fix func() (bool, error)) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastFix.After(start) {
		return true, nil
	}
	ok, err := fix()
	if ok {
		g.lastFix = time.Now()
	}
	return ok, err
}
