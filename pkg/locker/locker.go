// Package locker provides per key mutexes.
package locker

import "sync"

// Locker hands out one mutex per key. Entries are removed once nobody holds or waits
// for them.
type Locker struct {
	mut   sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mut  sync.Mutex
	refs int
}

// New creates a Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock locks the key and returns the unlock function.
func (k *Locker) Lock(key string) func() {
	k.mut.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = new(entry)
		k.locks[key] = l
	}
	l.refs++
	k.mut.Unlock()

	l.mut.Lock()

	return func() {
		l.mut.Unlock()

		k.mut.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mut.Unlock()
	}
}
