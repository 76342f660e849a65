package reconciler

import (
	"sync"
	"testing"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	locks := newKeyedLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.lock("call_1")
			counter++
			locks.unlock("call_1")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestKeyedLocks_EntriesReleased(t *testing.T) {
	locks := newKeyedLocks()

	locks.lock("a")
	locks.lock("b")
	locks.unlock("a")
	locks.unlock("b")

	locks.mu.Lock()
	n := len(locks.locks)
	locks.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected empty lock map, got %d entries", n)
	}
}
