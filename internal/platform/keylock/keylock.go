// Package keylock provides exclusive critical sections scoped to a single
// aggregate key (doctor+date for bookings, invoice id for payments). Locking
// is per key so unrelated doctors and invoices never contend.
package keylock

import "sync"

// KeyedMutex hands out one mutex per key, created on demand. Entries are
// reference-counted and removed when the last holder releases, so the map
// does not grow with the keyspace.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock acquires the exclusive section for key, blocking while another caller
// holds it.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the section for key. Unlocking a key that is not held is a
// programming error and panics, matching sync.Mutex behavior.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
