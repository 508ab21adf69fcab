package plugin

import (
	"sync"
)

// keyedMutex serializes lifecycle transitions per (tenantID, pluginID) pair.
// Operations on different keys proceed concurrently; entries are dropped
// once the last holder releases, so the map does not grow with churn.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{
		locks: make(map[string]*lockEntry),
	}
}

// Lock acquires the mutex for the (tenantID, pluginID) pair and returns the
// matching unlock function.
func (k *keyedMutex) Lock(tenantID, pluginID string) func() {
	key := tenantID + ":" + pluginID

	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
