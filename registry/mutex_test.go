package registry

import "testing"

func TestRecursiveMutexReentrant(t *testing.T) {
	var m recursiveMutex
	m.Lock()
	done := make(chan struct{})
	go func() {
		// A second goroutine must block until the outer Unlock below.
		m.Lock()
		m.Unlock()
		close(done)
	}()

	m.Lock() // reentrant from the same goroutine, must not deadlock
	m.Unlock()

	select {
	case <-done:
		t.Fatal("second goroutine acquired the lock while the first still held it")
	default:
	}

	m.Unlock()
	<-done
}

func TestRecursiveMutexUnlockByNonOwnerPanics(t *testing.T) {
	var m recursiveMutex
	m.Lock()
	defer m.Unlock()

	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		m.Unlock()
	}()
	if r := <-done; r == nil {
		t.Fatal("expected Unlock from a non-owning goroutine to panic")
	}
}
