package core

import (
	"sync"
	"testing"
)

func TestKeyLockMutualExclusion(t *testing.T) {
	kl := newKeyLock()

	const workers = 8
	const iterations = 200
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				kl.Lock("user:a")
				counter++
				kl.Unlock("user:a")
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Fatalf("got %d increments, want %d", counter, workers*iterations)
	}
}

func TestKeyLockOverlappingSets(t *testing.T) {
	kl := newKeyLock()

	// Two goroutines take overlapping key sets in opposite argument order.
	// Sorted acquisition means this must not deadlock.
	counters := map[string]int{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			kl.Lock("user:a", "user:b")
			counters["a"]++
			counters["b"]++
			kl.Unlock("user:a", "user:b")
		}()
		go func() {
			defer wg.Done()
			kl.Lock("user:b", "user:a")
			counters["a"]++
			counters["b"]++
			kl.Unlock("user:b", "user:a")
		}()
	}
	wg.Wait()

	if counters["a"] != 200 || counters["b"] != 200 {
		t.Fatalf("got %v, want 200 each", counters)
	}
}

func TestKeyLockDuplicateKeys(t *testing.T) {
	kl := newKeyLock()

	// A duplicated key must collapse to a single acquisition.
	kl.Lock("user:a", "user:a")
	kl.Unlock("user:a", "user:a")

	// The entry table must be empty again after a balanced unlock.
	kl.mu.Lock()
	n := len(kl.locks)
	kl.mu.Unlock()
	if n != 0 {
		t.Fatalf("got %d live lock entries, want 0", n)
	}
}

func TestKeyLockIndependentKeysDoNotBlock(t *testing.T) {
	kl := newKeyLock()

	kl.Lock("user:a")
	done := make(chan struct{})
	go func() {
		kl.Lock("user:b")
		kl.Unlock("user:b")
		close(done)
	}()
	<-done
	kl.Unlock("user:a")
}
