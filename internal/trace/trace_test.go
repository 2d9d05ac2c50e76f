package trace

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseLevelAndMode(t *testing.T) {
	for _, s := range []string{"off", "ERROR", "phase", "Detail", "debug"} {
		l, err := ParseLevel(s)
		if err != nil || !strings.EqualFold(l.String(), s) {
			t.Fatalf("ParseLevel(%q) = %s, %v", s, l, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if m, err := ParseMode("Both"); err != nil || m != ModeBoth || m.String() != "both" {
		t.Fatalf("ParseMode(Both) = %s, %v", m, err)
	}
	if _, err := ParseMode("disk"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSpansNestThroughContext(t *testing.T) {
	ring := NewRingTracer(16, LevelDetail)
	ctx := WithTracer(context.Background(), ring)

	outer, ctx := BeginCtx(ctx, ScopeDriver, "host_update")
	inner, _ := BeginCtx(ctx, ScopeShader, "shader:glass")
	if OpenSpans() < 2 {
		t.Fatalf("open spans = %d", OpenSpans())
	}
	node, _ := BeginCtx(ctx, ScopeNode, "node:emission")
	node.End("")
	inner.WithExtra("instrs", "12").End("ok")
	inner.End("again")
	outer.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4 (node scope filtered, double end ignored)", len(events))
	}
	if events[1].ParentID != outer.ID() || events[1].Name != "shader:glass" {
		t.Fatalf("inner span = %+v", events[1])
	}
	if events[2].Kind != KindSpanEnd || events[2].Extra["instrs"] != "12" || events[2].Detail != "ok" {
		t.Fatalf("inner end = %+v", events[2])
	}
}

func TestRingKeepsNewest(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(ring, ScopeNode, name, "")
	}
	var names []string
	for _, ev := range ring.Snapshot() {
		names = append(names, ev.Name)
	}
	if strings.Join(names, "") != "cde" || ring.Len() != 3 {
		t.Fatalf("ring = %v", names)
	}
	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatNDJSON); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 3 || !strings.Contains(buf.String(), `"name":"e"`) {
		t.Fatalf("dump = %s", buf.String())
	}
}

func TestStreamTracerAndHeartbeat(t *testing.T) {
	var buf syncBuffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeStream, Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	Begin(tr, ScopePass, "finalize", 0).End("")
	Point(tr, ScopeShader, "filtered", "")

	hb := StartHeartbeat(tr, time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "heartbeat") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	hb.Stop()
	hb.Stop()

	out := buf.String()
	if !strings.Contains(out, "→ finalize") || !strings.Contains(out, "← finalize") {
		t.Fatalf("stream output = %q", out)
	}
	if strings.Contains(out, "filtered") || !strings.Contains(out, "heartbeat") {
		t.Fatalf("stream output = %q", out)
	}
	if off, _ := New(Config{Level: LevelOff}); off.Enabled() {
		t.Fatalf("off tracer enabled")
	}
}
