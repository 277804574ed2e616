package monitor

import "sync"

// keyedLocks hands out one mutex per rule id so concurrent Observe calls for
// the same rule serialize while distinct rules proceed in parallel. Locks
// are never evicted; cardinality equals the number of distinct rules seen by
// this process.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}
