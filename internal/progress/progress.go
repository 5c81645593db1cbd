// Package progress delivers segmentation progress events to observers
// without ever blocking the segmenter.
package progress

import (
	"sync"
	"sync/atomic"
)

// Event is a snapshot of run progress after a frame was written.
type Event struct {
	RunID       string
	Segment     int
	Segments    int
	FramesDone  int
	FramesTotal int
}

// Fraction returns completion in [0, 1].
func (e Event) Fraction() float64 {
	if e.FramesTotal <= 0 {
		return 0
	}
	f := float64(e.FramesDone) / float64(e.FramesTotal)
	if f > 1 {
		return 1
	}
	return f
}

// Reporter receives progress events. Implementations must return quickly.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report calls f(e).
func (f ReporterFunc) Report(e Event) {
	f(e)
}

// Nop discards every event.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(Event) {}

// Async forwards events to a sink on its own goroutine. When the buffer is
// full the event is dropped and counted instead of blocking the caller.
type Async struct {
	sink    Reporter
	ch      chan Event
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts delivering events to sink. buffer is clamped to at least 1.
func NewAsync(sink Reporter, buffer int) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		sink: sink,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for e := range a.ch {
		a.sink.Report(e)
	}
}

// Report enqueues e or drops it if the sink is behind.
func (a *Async) Report(e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- e:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of events that were not delivered.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
