package shader

import (
	"context"
	"errors"

	"shadekit/internal/graph"
	"shadekit/internal/observ"
	"shadekit/internal/osl"
	"shadekit/internal/svm"
)

// ErrCancelled is returned when an update stops early; shaders it did not
// finish stay dirty.
var ErrCancelled = errors.New("shader: update cancelled")

// Compiled is the outcome of compiling one shader.
type Compiled struct {
	States  [graph.NumContexts]State
	Caps    graph.Caps
	Program *svm.Program
	Groups  [graph.NumContexts]*osl.Group

	NumInstrs int
	PeakStack int
	Layers    int
	Timer     *observ.Timer
	Summary   string
}

// Backend compiles shaders into one program representation.
type Backend interface {
	Name() string
	// Serial reports whether compilations must not overlap.
	Serial() bool
	// StackSize is the value stack the programs assume; 0 when unused.
	StackSize() int
	Compile(ctx context.Context, s *Shader) (*Compiled, error)
	Close()
}

// SVMBackend compiles to bytecode. Compilations are independent and may run
// in parallel.
type SVMBackend struct {
	compiler *svm.Compiler
}

func NewSVMBackend(opts ...svm.Option) *SVMBackend {
	return &SVMBackend{compiler: svm.NewCompiler(opts...)}
}

func (*SVMBackend) Name() string { return "svm" }

func (*SVMBackend) Serial() bool { return false }

func (b *SVMBackend) StackSize() int { return b.compiler.StackSize() }

func (b *SVMBackend) Compile(ctx context.Context, s *Shader) (*Compiled, error) {
	res, err := b.compiler.Compile(ctx, &svm.Target{
		Name:         s.Name,
		Graph:        s.Graph(),
		Displacement: s.Displacement,
		Background:   s.Background,
	})
	if err != nil {
		if errors.Is(err, svm.ErrCancelled) {
			return nil, errors.Join(ErrCancelled, err)
		}
		return nil, err
	}
	out := &Compiled{
		Caps:      res.Caps,
		Program:   res.Program,
		NumInstrs: res.Summary.NumInstrs,
		PeakStack: res.Summary.PeakStack,
		Timer:     res.Summary.Timer,
		Summary:   res.Summary.FullReport(),
	}
	for i := range res.Contexts {
		cr := &res.Contexts[i]
		switch {
		case cr.Skipped:
			out.States[i] = StateClean
		case cr.Failed:
			out.States[i] = StateFailed
		default:
			out.States[i] = StateValid
		}
	}
	return out, nil
}

func (*SVMBackend) Close() {}

// OSLBackend compiles to program groups on a shared runtime. The runtime
// serialises group building, so the manager runs one compilation at a time.
type OSLBackend struct {
	rt       *osl.Runtime
	compiler *osl.Compiler
	closed   bool
}

// NewOSLBackend acquires rt; Close releases it.
func NewOSLBackend(rt *osl.Runtime, opts ...osl.Option) *OSLBackend {
	rt.Acquire()
	return &OSLBackend{rt: rt, compiler: osl.NewCompiler(rt, opts...)}
}

func (*OSLBackend) Name() string { return "osl" }

func (*OSLBackend) Serial() bool { return true }

func (*OSLBackend) StackSize() int { return 0 }

func (b *OSLBackend) Compile(ctx context.Context, s *Shader) (*Compiled, error) {
	res, err := b.compiler.Compile(ctx, &osl.Target{
		Name:         s.Name,
		Graph:        s.Graph(),
		Displacement: s.Displacement,
		Background:   s.Background,
	})
	if err != nil {
		if errors.Is(err, osl.ErrCancelled) {
			return nil, errors.Join(ErrCancelled, err)
		}
		return nil, err
	}
	out := &Compiled{Caps: res.Caps, Groups: res.Groups, Timer: res.Timer}
	for i, grp := range res.Groups {
		if grp == nil {
			out.States[i] = StateClean
			continue
		}
		out.States[i] = StateValid
		out.Layers += len(grp.Layers)
	}
	out.Summary = res.Timer.Summary()
	return out, nil
}

// Close releases the runtime. Call it only after evaluation has drained.
func (b *OSLBackend) Close() {
	if b.closed {
		return
	}
	b.closed = true
	b.rt.Release()
}
