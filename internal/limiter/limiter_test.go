package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := New(n, 0); err == nil {
			t.Errorf("New(%d) should fail", n)
		}
	}
	if _, err := New(1, 0); err != nil {
		t.Errorf("New(1) should succeed: %v", err)
	}
}

func TestConcurrencyBound(t *testing.T) {
	lim, err := New(2, 0)
	if err != nil {
		t.Fatal(err)
	}

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lim.Run(context.Background(), func() error {
				n := atomic.AddInt64(&current, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
	if lim.Running() != 0 {
		t.Errorf("all slots should be released, running = %d", lim.Running())
	}
}

func TestFIFOFairness(t *testing.T) {
	lim, err := New(1, 0)
	if err != nil {
		t.Fatal(err)
	}

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var order []int
	var orderMu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = lim.Run(context.Background(), func() error {
			close(firstStarted)
			<-releaseFirst
			orderMu.Lock()
			order = append(order, 1)
			orderMu.Unlock()
			return nil
		})
	}()

	<-firstStarted
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = lim.Run(context.Background(), func() error {
			orderMu.Lock()
			order = append(order, 2)
			orderMu.Unlock()
			return nil
		})
	}()

	// Give the second task time to enqueue, then let the first finish.
	time.Sleep(10 * time.Millisecond)
	close(releaseFirst)
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("second task should complete strictly after the first, order = %v", order)
	}
}

func TestQueueTimeout(t *testing.T) {
	lim, err := New(1, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = lim.Run(context.Background(), func() error {
			close(blocked)
			<-unblock
			return nil
		})
	}()
	<-blocked
	defer close(unblock)

	err = lim.Run(context.Background(), func() error { return nil })
	var capErr *CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("queued caller should time out with CapacityExceededError, got %v", err)
	}
	if capErr.RetryAfter != 30*time.Millisecond {
		t.Errorf("RetryAfter = %s, want 30ms", capErr.RetryAfter)
	}
}

func TestContextCancellationWhileQueued(t *testing.T) {
	lim, err := New(1, 0)
	if err != nil {
		t.Fatal(err)
	}

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = lim.Run(context.Background(), func() error {
			close(blocked)
			<-unblock
			return nil
		})
	}()
	<-blocked
	defer close(unblock)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := lim.Run(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("queued caller should observe cancellation, got %v", err)
	}
}

func TestPanicReleasesSlot(t *testing.T) {
	lim, err := New(1, 0)
	if err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic should propagate to the caller")
			}
		}()
		_ = lim.Run(context.Background(), func() error {
			panic("task blew up")
		})
	}()

	if lim.Running() != 0 {
		t.Fatalf("panicking task leaked a slot, running = %d", lim.Running())
	}

	// The limiter must still admit work.
	ran := false
	if err := lim.Run(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("limiter should run tasks after a panic")
	}
}

func TestTryRun(t *testing.T) {
	lim, err := New(1, 0)
	if err != nil {
		t.Fatal(err)
	}

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = lim.Run(context.Background(), func() error {
			close(blocked)
			<-unblock
			return nil
		})
	}()
	<-blocked

	ok, err := lim.TryRun(func() error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("TryRun should report no slot while the limiter is full")
	}

	close(unblock)
	// Poll until the slot frees; TryRun never blocks.
	deadline := time.After(time.Second)
	for {
		ok, err = lim.TryRun(func() error { return nil })
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("TryRun never acquired a freed slot")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestRunPropagatesTaskError(t *testing.T) {
	lim, err := New(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := errors.New("task failed")
	if got := lim.Run(context.Background(), func() error { return want }); !errors.Is(got, want) {
		t.Errorf("Run should return the task's error, got %v", got)
	}
}
