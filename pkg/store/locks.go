package store

import "sync"

// keyLocks hands out one mutex per key. Entries are never evicted; the key
// space is bounded by the number of users.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

// returns mutex for given key (creates if needed)
func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok := k.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	k.locks[key] = l
	return l
}
