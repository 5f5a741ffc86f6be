package orchestrator

import (
	"sync"
	"testing"
	"time"
)

func TestPublisherDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []EventType
	p := newPublisher(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
	}, 16)

	p.Publish(Event{Type: EventRunStarted})
	p.Publish(Event{Type: EventStepStarted})
	p.Publish(Event{Type: EventStepCompleted})
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	want := []EventType{EventRunStarted, EventStepStarted, EventStepCompleted}
	if len(got) != len(want) {
		t.Fatalf("delivered %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPublishNeverBlocksWhenBufferFull(t *testing.T) {
	release := make(chan struct{})
	p := newPublisher(func(Event) {
		<-release
	}, 1)

	// Saturate: the consumer holds one event in the handler, the buffer
	// holds one more. Everything past that must be dropped immediately
	// instead of stalling the caller.
	start := time.Now()
	for i := 0; i < 10; i++ {
		p.Publish(Event{Type: EventStepStarted})
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("Publish blocked for %v with a full buffer", elapsed)
	}
	if p.DroppedCount() == 0 {
		t.Error("no events dropped despite full buffer")
	}

	close(release)
	p.Close()
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	var mu sync.Mutex
	count := 0
	p := newPublisher(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, 4)

	p.Publish(Event{Type: EventRunStarted})
	p.Close()
	p.Publish(Event{Type: EventRunCompleted})
	p.Close() // idempotent

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
	if p.DroppedCount() != 0 {
		t.Errorf("DroppedCount = %d, want 0", p.DroppedCount())
	}
}
