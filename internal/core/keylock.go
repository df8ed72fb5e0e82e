package core

import (
	"sort"
	"strconv"
	"sync"
)

// keyLock provides mutual exclusion per cache key. Every multi-step
// store-then-cache sequence locks the ids it mutates so that operations on
// the same user or chat never interleave, while unrelated keys proceed in
// parallel. Multi-key acquisition sorts the keys first to rule out deadlock
// between overlapping lock sets.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

// Lock acquires the locks for all given keys in sorted order.
// Duplicate keys are collapsed.
func (k *keyLock) Lock(keys ...string) {
	sorted := dedupSorted(keys)
	for _, key := range sorted {
		k.mu.Lock()
		e, ok := k.locks[key]
		if !ok {
			e = &keyLockEntry{}
			k.locks[key] = e
		}
		e.refs++
		k.mu.Unlock()
		e.mu.Lock()
	}
}

// Unlock releases the locks for all given keys.
func (k *keyLock) Unlock(keys ...string) {
	sorted := dedupSorted(keys)
	// Release in reverse acquisition order.
	for i := len(sorted) - 1; i >= 0; i-- {
		key := sorted[i]
		k.mu.Lock()
		e := k.locks[key]
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
		e.mu.Unlock()
	}
}

func dedupSorted(keys []string) []string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		out = append(out, key)
	}
	return out
}

func userKey(derivedID string) string {
	return "user:" + derivedID
}

func chatKey(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}
