package trace

import (
	"io"
	"slices"
	"sync"
)

// RingTracer keeps the last N events in memory so a failed host update
// can dump what led up to it.
type RingTracer struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
	level  Level
}

// NewRingTracer keeps capacity events; capacity <= 0 means 4096.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{events: make([]Event, capacity), level: level}
}

func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) && ev.Kind != KindHeartbeat {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[t.next] = *ev
	t.events[t.next].Seq = NextSeq()
	t.next++
	if t.next == len(t.events) {
		t.next, t.full = 0, true
	}
}

// Snapshot returns the held events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.full {
		return slices.Clone(t.events[:t.next])
	}
	return slices.Concat(t.events[t.next:], t.events[:t.next])
}

// Dump writes the held events, oldest first.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }

func (t *RingTracer) Close() error { return nil }

func (t *RingTracer) Level() Level { return t.level }

func (t *RingTracer) Enabled() bool { return t.level > LevelOff }

func (t *RingTracer) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.full {
		return len(t.events)
	}
	return t.next
}
