package campaign

import (
	"sync"
	"testing"
)

func TestPool_AcquireRelease(t *testing.T) {
	pool := NewPool(3)

	if !pool.AcquireN(2) {
		t.Fatal("acquiring 2 of 3 slots should succeed")
	}
	if pool.Available() != 1 {
		t.Errorf("got available=%d, want 1", pool.Available())
	}

	if pool.AcquireN(2) {
		t.Error("acquiring 2 slots with 1 free should fail")
	}
	if pool.Available() != 1 {
		t.Errorf("failed acquire changed availability to %d", pool.Available())
	}

	pool.Release()
	pool.Release()
	pool.Release()
	if pool.Available() != 3 {
		t.Errorf("got available=%d, want capped at 3", pool.Available())
	}
}

func TestPool_DefaultSize(t *testing.T) {
	if got := NewPool(0).Size(); got != DefaultPoolSize {
		t.Errorf("Size() = %d, want %d", got, DefaultPoolSize)
	}
	if NewPool(2).AcquireN(0) {
		t.Error("acquiring zero slots should fail")
	}
}

func TestPool_Concurrent(t *testing.T) {
	pool := NewPool(5)

	var wg sync.WaitGroup
	acquired := make(chan bool, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired <- pool.AcquireN(1)
		}()
	}

	wg.Wait()
	close(acquired)

	successCount := 0
	for ok := range acquired {
		if ok {
			successCount++
		}
	}

	if successCount != 5 {
		t.Errorf("got %d successful acquires, want 5", successCount)
	}
}

func TestPool_OnSlotsChanged(t *testing.T) {
	pool := NewPool(3)

	var mu sync.Mutex
	notifications := []int{}

	pool.SetOnSlotsChanged(func(available int) {
		mu.Lock()
		notifications = append(notifications, available)
		mu.Unlock()
	})

	pool.AcquireN(2)
	pool.AcquireN(5) // fails, no callback
	pool.Release()

	mu.Lock()
	got := notifications
	mu.Unlock()

	want := []int{1, 2}
	if len(got) != len(want) {
		t.Fatalf("got %d notifications %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d]: got %d, want %d", i, got[i], want[i])
		}
	}
}
