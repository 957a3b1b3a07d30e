package apply

import "sync"

// pathLocks serializes appliers whose destination sets overlap while letting
// disjoint directories proceed in parallel. Lock sets are acquired
// atomically, so two directories can never deadlock on each other's paths.
type pathLocks struct {
	mu   sync.Mutex
	cond *sync.Cond
	held map[string]struct{}
}

func newPathLocks() *pathLocks {
	l := &pathLocks{held: make(map[string]struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// acquire blocks until every path in the set is free, then claims them all.
func (l *pathLocks) acquire(paths []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.anyHeld(paths) {
		l.cond.Wait()
	}
	for _, p := range paths {
		l.held[p] = struct{}{}
	}
}

func (l *pathLocks) release(paths []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range paths {
		delete(l.held, p)
	}
	l.cond.Broadcast()
}

func (l *pathLocks) anyHeld(paths []string) bool {
	for _, p := range paths {
		if _, taken := l.held[p]; taken {
			return true
		}
	}
	return false
}
