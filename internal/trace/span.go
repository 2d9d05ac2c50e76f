package trace

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
	// openSpans counts spans begun and not yet ended; heartbeats report it.
	openSpans atomic.Int64
)

func NextSeq() uint64 { return seqCounter.Add(1) }

func NextSpanID() uint64 { return spanCounter.Add(1) }

// OpenSpans reports how many emitted spans have not ended.
func OpenSpans() int64 { return openSpans.Load() }

// goroutineID reads the id from the "goroutine N [...]" stack header.
func goroutineID() uint64 {
	var buf [64]byte
	hdr := buf[:runtime.Stack(buf[:], false)]
	hdr, ok := bytes.CutPrefix(hdr, []byte("goroutine "))
	if !ok {
		return 0
	}
	if i := bytes.IndexByte(hdr, ' '); i >= 0 {
		hdr = hdr[:i]
	}
	id, err := strconv.ParseUint(string(hdr), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Span is an open begin/end pair. A span the tracer does not admit is
// inert: all its methods are no-ops.
type Span struct {
	tracer  Tracer
	ev      Event
	started time.Time
}

// Begin opens a span under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{}
	}
	s := &Span{
		tracer:  t,
		started: time.Now(),
		ev: Event{
			Scope:    scope,
			SpanID:   NextSpanID(),
			ParentID: parent,
			GID:      goroutineID(),
			Name:     name,
		},
	}
	begin := s.ev
	begin.Time, begin.Seq, begin.Kind = s.started, NextSeq(), KindSpanBegin
	t.Emit(&begin)
	openSpans.Add(1)
	return s
}

// BeginCtx opens a span under the tracer and span found in ctx and returns
// the context its children should use.
func BeginCtx(ctx context.Context, scope Scope, name string) (*Span, context.Context) {
	sp := Begin(FromContext(ctx), scope, name, CurrentSpan(ctx).SpanID)
	return sp, sp.Context(ctx)
}

// End closes the span and returns its duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.tracer == nil {
		return 0
	}
	d := time.Since(s.started)
	end := s.ev
	end.Time, end.Seq, end.Kind, end.Detail = time.Now(), NextSeq(), KindSpanEnd, detail
	s.tracer.Emit(&end)
	s.tracer = nil
	openSpans.Add(-1)
	return d
}

// WithExtra attaches a key/value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.tracer == nil {
		return s
	}
	if s.ev.Extra == nil {
		s.ev.Extra = make(map[string]string)
	}
	s.ev.Extra[key] = value
	return s
}

func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.ev.SpanID
}

// Context returns ctx with s as the parent of nested spans.
func (s *Span) Context(ctx context.Context) context.Context {
	if s.ID() == 0 {
		return ctx
	}
	return WithSpanContext(ctx, SpanContext{SpanID: s.ev.SpanID, GID: s.ev.GID})
}
