// Package locks provides per-key mutual exclusion.
package locks

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// KeyedLocker hands out one exclusive section per key. Waiters on the same
// key are served in arrival order and different keys never contend.
// Entries are dropped once no holder or waiter references them.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyedLocker returns an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*entry)}
}

// Lock blocks until the section for key is free or ctx is done.
// On success the returned func must be called exactly once to release it.
func (k *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.release(key, e, false)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.release(key, e, true) })
	}, nil
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedLocker) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyedLocker) release(key string, e *entry, held bool) {
	if held {
		e.sem.Release(1)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}
