package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat emits a periodic event carrying the number of open spans. A
// stuck compile shows up as heartbeats with a constant, non-zero count.
type Heartbeat struct {
	tracer Tracer
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartHeartbeat returns nil when the tracer is disabled or interval <= 0.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{tracer: tracer, stop: make(chan struct{}), done: make(chan struct{})}
	go h.run(interval)
	return h
}

func (h *Heartbeat) run(interval time.Duration) {
	defer close(h.done)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for n := 1; ; n++ {
		select {
		case <-h.stop:
			return
		case now := <-tick.C:
			h.tracer.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    goroutineID(),
				Name:   "heartbeat",
				Detail: fmt.Sprintf("#%d open=%d", n, OpenSpans()),
			})
		}
	}
}

// Stop ends the heartbeat and waits for its goroutine. Safe to call more
// than once and on nil.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
