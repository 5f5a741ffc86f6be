package orchestrator

import (
	"log"
	"sync"
	"sync/atomic"
)

// publisher decouples event emission from the scheduling loop. Events
// flow through a bounded channel to a consumer goroutine that invokes
// the caller's handler; a slow or panicking handler can never block or
// corrupt orchestration.
type publisher struct {
	mu           sync.Mutex
	events       chan Event
	closed       bool
	done         chan struct{}
	droppedCount atomic.Uint64
}

// newPublisher starts the consumer goroutine for the given handler.
func newPublisher(handler func(Event), bufferSize int) *publisher {
	p := &publisher{
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go p.consume(handler)
	return p
}

// consume dispatches events to the handler, isolating handler panics.
func (p *publisher) consume(handler func(Event)) {
	defer close(p.done)
	for event := range p.events {
		p.dispatch(handler, event)
	}
}

func (p *publisher) dispatch(handler func(Event), event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[orchestrator] event handler panicked on %s: %v", event.Type, r)
		}
	}()
	handler(event)
}

// Publish sends an event to the consumer without ever blocking the
// caller: if the buffer is full the event is dropped and counted. The
// mutex guards the closed check so Close cannot close the channel
// under a send.
func (p *publisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- event:
	default:
		count := p.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (p *publisher) DroppedCount() uint64 {
	return p.droppedCount.Load()
}

// Close stops the consumer after draining queued events.
func (p *publisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	p.mu.Unlock()
	<-p.done
}
