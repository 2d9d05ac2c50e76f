package osl

import (
	"context"
	"errors"
	"fmt"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
	"shadekit/internal/observ"
	"shadekit/internal/resolve"
	"shadekit/internal/trace"
)

var (
	ErrCancelled   = errors.New("osl: compilation cancelled")
	ErrNoGraph     = errors.New("osl: target has no graph")
	ErrNotAcquired = errors.New("osl: runtime not acquired")
)

type Target struct {
	Name         string
	Graph        *graph.Graph
	Displacement graph.DisplacementMethod
	Background   bool
}

// Result holds one sealed group per compiled context; skipped contexts
// are nil.
type Result struct {
	Groups   [graph.NumContexts]*Group
	Caps     graph.Caps
	Timer    *observ.Timer
	Finalize graph.FinalizeReport
}

type Option func(*Compiler)

func WithReporter(r diag.Reporter) Option {
	return func(c *Compiler) {
		if r != nil {
			c.reporter = r
		}
	}
}

// Compiler builds program groups on a shared runtime.
type Compiler struct {
	rt       *Runtime
	reporter diag.Reporter
}

func NewCompiler(rt *Runtime, opts ...Option) *Compiler {
	c := &Compiler{rt: rt, reporter: diag.NopReporter{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// session is the state of one Compile call, passed explicitly to every
// step instead of living on the compiler.
type session struct {
	ctx    context.Context
	c      *Compiler
	target *Target
	loader *Loader
	build  *Build
	cctx   graph.Context
	caps   graph.Caps
	// missing holds nodes of the current context that have no layer.
	missing  resolve.NodeSet
	reported resolve.NodeSet
}

// Compile finalizes the graph and builds a group for every linked context.
func (c *Compiler) Compile(ctx context.Context, t *Target) (*Result, error) {
	if t == nil || t.Graph == nil || t.Graph.Output() == nil {
		return nil, ErrNoGraph
	}
	loader := c.rt.Loader()
	if loader == nil {
		return nil, ErrNotAcquired
	}
	span, ctx := trace.BeginCtx(ctx, trace.ScopeShader, "osl:"+t.Name)
	defer span.End("")

	g := t.Graph
	hasBump := graph.HasBump(g, t.Displacement, t.Background)
	res := &Result{Timer: observ.NewTimer()}
	idx := res.Timer.Begin("finalize")
	res.Finalize = g.Finalize(graph.FinalizeOptions{Bump: hasBump})
	res.Timer.End(idx, fmt.Sprintf("%d nodes", g.Len()))
	for _, l := range res.Finalize.BrokenLinks {
		diag.ReportWarning(c.reporter, diag.GraphCycle, diag.Subject{Shader: t.Name, Node: l}, "link removed to break a cycle").Emit()
	}

	c.rt.Lock()
	defer c.rt.Unlock()

	s := &session{ctx: ctx, c: c, target: t, loader: loader, build: NewBuild(), reported: resolve.NewNodeSet()}
	out := g.Output()
	for _, cctx := range [...]graph.Context{graph.ContextSurface, graph.ContextBump, graph.ContextVolume, graph.ContextDisplacement} {
		switch cctx {
		case graph.ContextBump:
			if !hasBump {
				continue
			}
		case graph.ContextDisplacement:
			if !graph.HasDisplacement(g, t.Displacement) {
				continue
			}
		default:
			if out.Input(cctx.RootInput()).Link == nil {
				continue
			}
		}
		idx := res.Timer.Begin(cctx.String())
		group, err := s.compileContext(cctx)
		res.Timer.End(idx, fmt.Sprintf("%d layers", len(layersOf(group))))
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				diag.ReportError(c.reporter, diag.CompileCancelled, diag.Subject{Shader: t.Name, Context: cctx.String()}, err.Error()).Emit()
			}
			return nil, err
		}
		res.Groups[cctx] = group
		switch cctx {
		case graph.ContextSurface:
			s.caps.Set(graph.CapSurface)
		case graph.ContextVolume:
			s.caps.Set(graph.CapVolume)
		case graph.ContextDisplacement:
			s.caps.Set(graph.CapDisplacement)
		}
	}
	if hasBump {
		s.caps.Set(graph.CapBump)
	}
	res.Caps = s.caps
	return res, nil
}

func (s *session) subject(n *graph.Node) diag.Subject {
	sub := diag.Subject{Shader: s.target.Name, Context: s.cctx.String()}
	if n != nil {
		sub.Node = n.String()
	}
	return sub
}

func (s *session) skip(n *graph.Node, in *graph.Input) bool {
	return resolve.SkipInput(n, in, s.cctx)
}

func (s *session) compileContext(cctx graph.Context) (*Group, error) {
	s.cctx = cctx
	s.missing = resolve.NewNodeSet()
	out := s.target.Graph.Output()
	if err := s.build.BeginGroup(s.target.Name); err != nil {
		return nil, err
	}
	done := resolve.NewNodeSet()
	deps := resolve.Dependencies(out.Input(cctx.RootInput()), cctx, done, nil, resolve.SkipInput)
	plan, err := resolve.Schedule(deps, done, cctx, resolve.SkipInput)
	if err != nil {
		diag.ReportError(s.c.reporter, diag.GraphCycle, s.subject(nil), err.Error()).Emit()
		_, _ = s.build.EndGroup()
		return nil, err
	}
	for _, n := range plan.Order {
		if err := s.ctx.Err(); err != nil {
			_, _ = s.build.EndGroup()
			return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		if err := s.add(n); err != nil {
			_, _ = s.build.EndGroup()
			return nil, err
		}
	}
	if err := s.add(out); err != nil {
		_, _ = s.build.EndGroup()
		return nil, err
	}
	return s.build.EndGroup()
}

// shaderName picks the program a node instantiates.
func (s *session) shaderName(n *graph.Node) (string, *ShaderInfo, bool) {
	switch n.Kind {
	case graph.KindOutput:
		return "node_output_" + s.cctx.String(), nil, true
	case graph.KindScript:
		if n.Script == nil {
			return "", nil, false
		}
		if n.Script.Path != "" {
			info, err := s.loader.LoadFile(s.ctx, n.Script.Path)
			if err != nil {
				return "", nil, false
			}
			return info.Hash, info, true
		}
		info := s.loader.LoadBytecode(n.Script.Hash, n.Script.Bytecode)
		return info.Hash, info, true
	}
	return "node_" + n.Kind.String(), nil, true
}

// add binds constant inputs and parameters, instantiates the layer and
// connects linked inputs.
func (s *session) add(n *graph.Node) error {
	name, info, ok := s.shaderName(n)
	if !ok {
		s.missing.Add(n)
		if !s.reported.Has(n) {
			s.reported.Add(n)
			diag.ReportWarning(s.c.reporter, diag.OSLSourceUnreadable, s.subject(n),
				"script program unavailable, consumers fall back to their defaults").Emit()
		}
		return nil
	}

	for _, in := range n.Inputs {
		if s.skip(n, in) || (in.Link != nil && !s.missing.Has(in.Link.Parent)) {
			continue
		}
		switch in.Type {
		case graph.TypeColor, graph.TypePoint, graph.TypeVector, graph.TypeNormal,
			graph.TypeFloat, graph.TypeInt, graph.TypeString:
		default:
			continue
		}
		if err := s.build.Parameter(inputName(n, in), in.Value); err != nil {
			return err
		}
	}
	for _, p := range n.Params {
		if err := s.build.Parameter(cleanName(p.Name), p.Value); err != nil {
			diag.ReportWarning(s.c.reporter, diag.OSLMalformedParameter, s.subject(n), err.Error()).Emit()
		}
	}

	usage := "surface"
	if s.cctx == graph.ContextDisplacement || s.cctx == graph.ContextBump {
		usage = "displacement"
	}
	if err := s.build.Shader(usage, name, layerID(n)); err != nil {
		return err
	}

	for _, in := range n.Inputs {
		if in.Link == nil || s.skip(n, in) || s.missing.Has(in.Link.Parent) {
			continue
		}
		src := in.Link.Parent
		if err := s.build.Connect(layerID(src), outputName(src, in.Link), layerID(n), inputName(n, in)); err != nil {
			return err
		}
	}

	s.collectCaps(n, info)
	return nil
}

func (s *session) collectCaps(n *graph.Node, info *ShaderInfo) {
	f := n.Features()
	switch s.cctx {
	case graph.ContextSurface:
		if info != nil {
			if info.HasEmission {
				s.caps.Set(graph.CapSurfaceEmission)
			}
			if info.HasTransparent {
				s.caps.Set(graph.CapSurfaceTransparent)
			}
			if info.HasBSSRDF {
				s.caps.Set(graph.CapSurfaceBSSRDF | graph.CapBSSRDFBump)
			}
			// program contents are opaque beyond the closure names
			s.caps.Set(graph.CapSurfaceRaytrace)
		}
		if f&graph.FeatureEmission != 0 {
			s.caps.Set(graph.CapSurfaceEmission)
		}
		if f&graph.FeatureTransparent != 0 {
			s.caps.Set(graph.CapSurfaceTransparent)
		}
		if f&graph.FeatureRaytrace != 0 {
			s.caps.Set(graph.CapSurfaceRaytrace)
		}
		if f&graph.FeatureSpatialVarying != 0 {
			s.caps.Set(graph.CapSurfaceSpatialVarying)
		}
		if f&graph.FeatureBSSRDF != 0 {
			s.caps.Set(graph.CapSurfaceBSSRDF)
			if f&graph.FeatureBSSRDFBump != 0 {
				s.caps.Set(graph.CapBSSRDFBump)
			}
		}
		if f&graph.FeatureBump != 0 {
			s.caps.Set(graph.CapBump)
		}
	case graph.ContextVolume:
		if f&graph.FeatureSpatialVarying != 0 {
			s.caps.Set(graph.CapVolumeSpatialVarying)
		}
		if f&graph.FeatureAttributeDependency != 0 {
			s.caps.Set(graph.CapVolumeAttributeDependency)
		}
	}
	if f&graph.FeatureIntegratorDependency != 0 {
		s.caps.Set(graph.CapIntegratorDependency)
	}
}

func layersOf(g *Group) []Layer {
	if g == nil {
		return nil
	}
	return g.Layers
}
