package shader

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
	"shadekit/internal/observ"
	"shadekit/internal/trace"
)

// Report summarises the last compilation of one shader.
type Report struct {
	ID        int                       `json:"id" msgpack:"id"`
	Name      string                    `json:"name" msgpack:"name"`
	Backend   string                    `json:"backend" msgpack:"backend"`
	States    [graph.NumContexts]string `json:"states" msgpack:"states"`
	Caps      []string                  `json:"caps,omitempty" msgpack:"caps,omitempty"`
	NumInstrs int                       `json:"instrs,omitempty" msgpack:"instrs,omitempty"`
	PeakStack int                       `json:"peak_stack,omitempty" msgpack:"peak_stack,omitempty"`
	Layers    int                       `json:"layers,omitempty" msgpack:"layers,omitempty"`
	Error     string                    `json:"error,omitempty" msgpack:"error,omitempty"`
	Timings   observ.Report             `json:"timings" msgpack:"timings"`
	// Summary is the human-readable block printed by --report.
	Summary string `json:"-" msgpack:"-"`
}

type Option func(*Manager)

// WithJobs limits parallel compilations; n <= 0 means GOMAXPROCS.
func WithJobs(n int) Option { return func(m *Manager) { m.jobs = n } }

func WithReporter(r diag.Reporter) Option {
	return func(m *Manager) {
		if r != nil {
			m.reporter = r
		}
	}
}

func WithProgress(s ProgressSink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// Manager compiles dirty shaders and publishes their programs.
type Manager struct {
	backend  Backend
	jobs     int
	reporter diag.Reporter
	sink     ProgressSink

	mu      sync.Mutex
	shaders []*Shader
}

func NewManager(b Backend, opts ...Option) *Manager {
	m := &Manager{backend: b, reporter: diag.NopReporter{}, sink: nopSink{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Backend() Backend { return m.backend }

// HostUpdate assigns shader IDs by position and recompiles every modified
// shader. Failures stay local to one shader context and are reported as
// diagnostics; only cancellation is returned as an error, in which case
// unfinished shaders stay dirty.
func (m *Manager) HostUpdate(ctx context.Context, shaders []*Shader) error {
	span, ctx := trace.BeginCtx(ctx, trace.ScopeDriver, "host_update")
	defer span.End("")

	m.mu.Lock()
	m.shaders = slices.Clone(shaders)
	m.mu.Unlock()

	var dirty []*Shader
	for i, s := range shaders {
		s.ID = i
		if s.Modified() {
			dirty = append(dirty, s)
			m.sink.OnEvent(Event{Shader: s.Name, Stage: StageCompile, Status: StatusQueued})
		}
	}
	span.WithExtra("dirty", fmt.Sprint(len(dirty)))
	if len(dirty) == 0 {
		return nil
	}

	jobs := m.jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	if m.backend.Serial() {
		jobs = 1
	}

	var g errgroup.Group
	g.SetLimit(min(jobs, len(dirty)))
	for _, s := range dirty {
		g.Go(func() error {
			return m.compile(ctx, s)
		})
	}
	err := g.Wait()
	m.sink.OnEvent(Event{Stage: StageCompile, Status: StatusDone})
	return err
}

func (m *Manager) compile(ctx context.Context, s *Shader) error {
	if err := ctx.Err(); err != nil {
		m.sink.OnEvent(Event{Shader: s.Name, Stage: StageCompile, Status: StatusCancelled, Err: err})
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	start := time.Now()
	m.sink.OnEvent(Event{Shader: s.Name, Stage: StageCompile, Status: StatusWorking})
	s.beginCompile()

	out, err := m.backend.Compile(ctx, s)
	elapsed := time.Since(start)
	switch {
	case err == nil:
	case errors.Is(err, ErrCancelled):
		s.abortCompile()
		m.sink.OnEvent(Event{Shader: s.Name, Stage: StageCompile, Status: StatusCancelled, Err: err, Elapsed: elapsed})
		return err
	default:
		rep := m.report(s, nil)
		rep.Error = err.Error()
		s.failAll(rep)
		diag.ReportError(m.reporter, diag.ShaderCompileFailed, diag.Subject{Shader: s.Name}, err.Error()).Emit()
		m.sink.OnEvent(Event{Shader: s.Name, Stage: StageCompile, Status: StatusFailed, Err: err, Elapsed: elapsed})
		return nil
	}

	s.install(out, m.report(s, out))
	status := StatusDone
	if slices.Contains(out.States[:], StateFailed) {
		status = StatusFailed
	}
	m.sink.OnEvent(Event{Shader: s.Name, Stage: StageCompile, Status: status, Elapsed: elapsed})
	return nil
}

func (m *Manager) report(s *Shader, out *Compiled) *Report {
	rep := &Report{ID: s.ID, Name: s.Name, Backend: m.backend.Name()}
	if out == nil {
		return rep
	}
	for i, st := range out.States {
		rep.States[i] = st.String()
	}
	rep.Caps = out.Caps.Names()
	rep.NumInstrs = out.NumInstrs
	rep.PeakStack = out.PeakStack
	rep.Layers = out.Layers
	rep.Summary = out.Summary
	if out.Timer != nil {
		rep.Timings = out.Timer.Report()
	}
	return rep
}

// Shaders returns the shaders of the last host update in ID order.
func (m *Manager) Shaders() []*Shader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.shaders)
}

// Report returns the last compilation summary of every shader that has one.
func (m *Manager) Report() []Report {
	var out []Report
	for _, s := range m.Shaders() {
		if rep := s.lastReport(); rep != nil {
			out = append(out, *rep)
		}
	}
	return out
}

// Close releases backend resources. Evaluation using published programs
// must have finished.
func (m *Manager) Close() {
	m.backend.Close()
}
