package svm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
	"shadekit/internal/observ"
	"shadekit/internal/resolve"
	"shadekit/internal/trace"
)

var (
	ErrCancelled = errors.New("svm: compilation cancelled")
	ErrNoGraph   = errors.New("svm: target has no graph")
)

// Target is one shader handed to the compiler.
type Target struct {
	Name         string
	Graph        *graph.Graph
	Displacement graph.DisplacementMethod
	// Background shaders never evaluate bump.
	Background bool
}

func (t *Target) HasBump() bool { return graph.HasBump(t.Graph, t.Displacement, t.Background) }

func (t *Target) HasDisplacement() bool { return graph.HasDisplacement(t.Graph, t.Displacement) }

type Option func(*Compiler)

// WithStackSize limits the value stack; values outside (0, StackSize] keep the default.
func WithStackSize(n int) Option {
	return func(c *Compiler) {
		if n > 0 && n <= StackSize {
			c.stackSize = n
		}
	}
}

func WithReporter(r diag.Reporter) Option {
	return func(c *Compiler) {
		if r != nil {
			c.reporter = r
		}
	}
}

// Compiler turns shader graphs into bytecode. It holds no per-compilation
// state and may be shared between goroutines as long as each target graph
// is compiled by one goroutine at a time.
type Compiler struct {
	stackSize int
	reporter  diag.Reporter
}

func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{stackSize: StackSize, reporter: diag.NopReporter{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) StackSize() int { return c.stackSize }

// Compile finalizes the target graph and generates every context. A failed
// context is reported and replaced by an empty body; only cancellation
// aborts the whole compilation.
func (c *Compiler) Compile(ctx context.Context, t *Target) (*Result, error) {
	if t == nil || t.Graph == nil || t.Graph.Output() == nil {
		return nil, ErrNoGraph
	}
	span, ctx := trace.BeginCtx(ctx, trace.ScopeShader, "svm:"+t.Name)
	defer span.End("")

	g := t.Graph
	hasBump := t.HasBump()
	timer := observ.NewTimer()
	res := &Result{Summary: &Summary{Timer: timer}}

	idx := timer.Begin("finalize")
	res.Finalize = g.Finalize(graph.FinalizeOptions{Bump: hasBump})
	timer.End(idx, fmt.Sprintf("%d nodes", g.Len()))
	for _, l := range res.Finalize.BrokenLinks {
		diag.ReportWarning(c.reporter, diag.GraphCycle, diag.Subject{Shader: t.Name, Node: l}, "link removed to break a cycle").Emit()
	}

	gen := &generator{
		ctx:      ctx,
		compiler: c,
		target:   t,
		graph:    g,
		aovIndex: make(map[string]int),
		attrs:    make(map[string]int),
		warned:   resolve.NewNodeSet(),
	}

	for _, cctx := range [...]graph.Context{graph.ContextBump, graph.ContextSurface, graph.ContextVolume, graph.ContextDisplacement} {
		cr := &res.Contexts[cctx]
		cr.Context = cctx
		skip := false
		switch cctx {
		case graph.ContextBump:
			skip = !hasBump
		case graph.ContextDisplacement:
			skip = !t.HasDisplacement()
		}
		if skip {
			cr.Skipped = true
			if cctx != graph.ContextBump {
				cr.Instrs = []Instr{makeInstr(OpEnd, 0, 0, 0)}
			}
			continue
		}
		idx := timer.Begin(cctx.String())
		err := gen.compileContext(cctx, cr)
		timer.End(idx, fmt.Sprintf("%d instrs", len(cr.Instrs)))
		if err != nil {
			diag.ReportError(c.reporter, diag.CompileCancelled, diag.Subject{Shader: t.Name, Context: cctx.String()}, err.Error()).Emit()
			return nil, err
		}
		res.Summary.PeakStack = max(res.Summary.PeakStack, cr.PeakStack)
	}

	if hasBump {
		gen.caps.Set(graph.CapBump)
	}
	res.Caps = gen.caps
	res.Program = link(t.Name, res)
	res.Program.AOVs = gen.aovNames
	res.Program.Attributes = gen.attrNames
	res.Summary.NumInstrs = len(res.Program.Instrs)
	span.WithExtra("instrs", fmt.Sprint(res.Summary.NumInstrs))
	return res, nil
}

// generator is the state of one Compile call. Per-context fields are reset
// by compileContext.
type generator struct {
	ctx      context.Context
	compiler *Compiler
	target   *Target
	graph    *graph.Graph
	caps     graph.Caps
	err      error

	aovIndex  map[string]int
	aovNames  []string
	attrs     map[string]int
	attrNames []string

	cctx        graph.Context
	stack       *Stack
	offsets     map[*graph.Output]int
	temps       map[*graph.Input]int
	instrs      []Instr
	done        resolve.NodeSet
	closureDone resolve.NodeSet
	aovNodes    []*graph.Node
	aovDeps     resolve.NodeSet
	live        resolve.NodeSet
	mixWeight   int
	failed      bool
	warned      resolve.NodeSet
}

func (g *generator) policy(n *graph.Node, in *graph.Input, c graph.Context) bool {
	return resolve.SkipInputSVM(n, in, c)
}

func (g *generator) subject(n *graph.Node) diag.Subject {
	s := diag.Subject{Shader: g.target.Name, Context: g.cctx.String()}
	if n != nil {
		s.Node = n.String()
	}
	return s
}

func (g *generator) compileContext(cctx graph.Context, cr *ContextResult) error {
	if err := g.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	g.cctx = cctx
	g.stack = NewStack(g.compiler.stackSize)
	g.offsets = make(map[*graph.Output]int)
	g.temps = make(map[*graph.Input]int)
	g.instrs = nil
	g.done = resolve.NewNodeSet()
	g.closureDone = resolve.NewNodeSet()
	g.aovNodes = nil
	g.aovDeps = resolve.NewNodeSet()
	g.mixWeight = StackInvalid
	g.failed = false

	out := g.graph.Output()
	root := out.Input(cctx.RootInput())

	bumpState := StackInvalid
	saveBump := cctx == graph.ContextBump && g.target.Displacement == graph.DisplacementBoth
	if saveBump {
		bumpState = g.findOffset(BumpStateSize, nil)
		g.add(OpEnterBumpEval, bumpState, 0, 0)
	}

	if cctx == graph.ContextSurface {
		g.findAOVNodes()
	}
	g.findLiveNodes(out, root)

	if root.Link != nil {
		switch cctx {
		case graph.ContextSurface:
			g.caps.Set(graph.CapSurface)
		case graph.ContextVolume:
			g.caps.Set(graph.CapVolume)
		case graph.ContextDisplacement:
			g.caps.Set(graph.CapDisplacement)
		}
		n := root.Link.Parent
		g.generateMultiClosure(n, n)
	} else {
		cr.Skipped = cctx != graph.ContextSurface || len(g.aovNodes) == 0
	}

	g.compileOutput(out)
	for _, n := range g.aovNodes {
		g.generateAOV(n)
	}
	if saveBump {
		g.add(OpLeaveBumpEval, bumpState, 0, 0)
	}
	if g.err != nil {
		return g.err
	}

	if g.failed {
		g.instrs = g.instrs[:0]
	}
	if cctx != graph.ContextBump {
		g.add(OpEnd, 0, 0, 0)
	}
	cr.Instrs = slices.Clone(g.instrs)
	cr.Failed = g.failed
	cr.PeakStack = g.stack.Peak()
	trace.Point(trace.FromContext(g.ctx), trace.ScopeNode, "context:"+cctx.String(),
		fmt.Sprintf("instrs=%d peak=%d failed=%t", len(cr.Instrs), cr.PeakStack, cr.Failed))
	return nil
}

// findAOVNodes collects AOV writers and their dependencies so shared
// closure branches can emit them before any jump.
func (g *generator) findAOVNodes() {
	for _, n := range g.graph.Nodes() {
		if n.Special() != graph.SpecialAOV {
			continue
		}
		g.aovNodes = append(g.aovNodes, n)
		for _, in := range n.Inputs {
			resolve.Collect(&g.aovDeps, in, g.cctx, g.done, nil, g.policy)
		}
	}
}

// findLiveNodes collects every node the current context may emit. Only
// these count as consumers when a stack slot is released.
func (g *generator) findLiveNodes(out *graph.Node, root *graph.Input) {
	g.live = resolve.NewNodeSet(out)
	resolve.Collect(&g.live, root, g.cctx, resolve.NewNodeSet(), nil, g.policy)
	g.live.AddAll(g.aovDeps)
	for _, n := range g.aovNodes {
		g.live.Add(n)
	}
}

func (g *generator) generateAOV(n *graph.Node) {
	for _, in := range n.Inputs {
		if !g.linked(in) {
			continue
		}
		g.generateNodes(resolve.Dependencies(in, g.cctx, g.done, nil, g.policy))
	}
	g.generateNode(n)
}

func (g *generator) add(op Opcode, x, y, z int) int {
	g.instrs = append(g.instrs, makeInstr(op, word(x), word(y), word(z)))
	return len(g.instrs) - 1
}

func (g *generator) addWords(op Opcode, x, y, z int32) int {
	g.instrs = append(g.instrs, makeInstr(op, x, y, z))
	return len(g.instrs) - 1
}

func (g *generator) addRecord(r Instr) { g.instrs = append(g.instrs, r) }

// findOffset reserves stack space. Exhaustion fails the context once and
// keeps generating so the rest of the shader still reports diagnostics.
func (g *generator) findOffset(width int, n *graph.Node) int {
	off, ok := g.stack.Find(width)
	if ok {
		return off
	}
	if !g.failed {
		g.failed = true
		diag.ReportError(g.compiler.reporter, diag.SVMStackExhausted, g.subject(n),
			fmt.Sprintf("out of stack space: %d slots in use, %d needed", g.stack.InUse(), width)).Emit()
		trace.Point(trace.FromContext(g.ctx), trace.ScopeNode, "stack_exhausted", g.subject(n).String())
	}
	return 0
}

// linked reports whether an input takes its value from a link in the
// current context.
func (g *generator) linked(in *graph.Input) bool {
	return in != nil && in.Link != nil && !g.policy(in.Parent, in, g.cctx)
}

func (g *generator) stackAssignOutput(out *graph.Output) int {
	if off, ok := g.offsets[out]; ok {
		return off
	}
	w := widthOf(out.Type)
	if w == 0 {
		return StackInvalid
	}
	off := g.findOffset(w, out.Parent)
	g.offsets[out] = off
	return off
}

func (g *generator) stackAssignOutputIfLinked(out *graph.Output) int {
	if out == nil || len(out.Links) == 0 {
		return StackInvalid
	}
	return g.stackAssignOutput(out)
}

// stackAssign returns the slot holding an input value. Unlinked inputs get
// a temporary slot loaded with their constant.
func (g *generator) stackAssign(in *graph.Input) int {
	if in == nil {
		return StackInvalid
	}
	if g.linked(in) {
		return g.stackAssignOutput(in.Link)
	}
	if off, ok := g.temps[in]; ok {
		return off
	}
	w := widthOf(in.Type)
	if w == 0 {
		return StackInvalid
	}
	off := g.findOffset(w, in.Parent)
	g.temps[in] = off
	switch {
	case w == 1:
		g.addWords(OpValueF, floatWord(in.Value.Float()), word(off), 0)
	case in.Type == graph.TypePoint2:
		p := in.Value.Vec2()
		g.add(OpValueV, off, 0, 0)
		g.addRecord(Instr{floatWord(p.X), floatWord(p.Y), 0, 0})
	default:
		g.add(OpValueV, off, 0, 0)
		g.addRecord(vecRecord(in.Value))
	}
	return off
}

// stackAssignIfLinked returns StackInvalid for unlinked inputs, which are
// then encoded inline.
func (g *generator) stackAssignIfLinked(in *graph.Input) int {
	if !g.linked(in) {
		return StackInvalid
	}
	return g.stackAssign(in)
}

// inline is stackAssignIfLinked paired with the constant's bits.
func (g *generator) inline(in *graph.Input) (int, int32) {
	return g.stackAssignIfLinked(in), floatWord(in.Value.Float())
}

// stackLink makes out share the slot of in's source. It reports false when
// the pass-through is not possible.
func (g *generator) stackLink(in *graph.Input, out *graph.Output) bool {
	if !g.linked(in) || widthOf(in.Link.Type) != widthOf(out.Type) {
		return false
	}
	if _, ok := g.offsets[out]; ok {
		return false
	}
	off := g.stackAssignOutput(in.Link)
	g.offsets[out] = off
	g.stack.Retain(off, widthOf(out.Type))
	return true
}

// release frees linked input slots whose every other consumer in the
// current context has been emitted. Emitters call it after assigning
// inputs and before outputs.
func (g *generator) release(n *graph.Node) {
	for _, in := range n.Inputs {
		if !g.linked(in) {
			continue
		}
		src := in.Link
		off, ok := g.offsets[src]
		if !ok {
			continue
		}
		live := false
		for _, to := range src.Links {
			if to.Parent == n || g.done.Has(to.Parent) || !g.live.Has(to.Parent) {
				continue
			}
			if !g.policy(to.Parent, to, g.cctx) {
				live = true
				break
			}
		}
		if !live {
			g.stack.Release(off, widthOf(src.Type))
			delete(g.offsets, src)
		}
	}
}

func (g *generator) clearTemporary(n *graph.Node) {
	for _, in := range n.Inputs {
		if off, ok := g.temps[in]; ok {
			g.stack.Release(off, widthOf(in.Type))
			delete(g.temps, in)
		}
	}
}

func (g *generator) generateNodes(set resolve.NodeSet) {
	if g.err != nil || set.Len() == 0 {
		return
	}
	plan, err := resolve.Schedule(set, g.done, g.cctx, g.policy)
	if err != nil {
		// Finalize breaks cycles, so this only happens on graphs mutated
		// after finalization.
		diag.ReportError(g.compiler.reporter, diag.GraphCycle, g.subject(nil), err.Error()).Emit()
		g.failed = true
		return
	}
	for _, n := range plan.Order {
		if g.done.Has(n) {
			continue
		}
		switch n.Special() {
		case graph.SpecialClosure, graph.SpecialCombineClosure:
			g.generateMultiClosure(n, n)
		default:
			g.generateNode(n)
		}
	}
}

func (g *generator) generateNode(n *graph.Node) {
	if g.err != nil || g.done.Has(n) {
		return
	}
	if err := g.ctx.Err(); err != nil {
		g.err = fmt.Errorf("%w: %w", ErrCancelled, err)
		return
	}
	g.compileNode(n)
	g.done.Add(n)
	g.release(n)
	g.clearTemporary(n)

	f := n.Features()
	switch g.cctx {
	case graph.ContextSurface:
		if f&graph.FeatureSpatialVarying != 0 {
			g.caps.Set(graph.CapSurfaceSpatialVarying)
		}
		if f&graph.FeatureRaytrace != 0 {
			g.caps.Set(graph.CapSurfaceRaytrace)
		}
		if f&graph.FeatureBump != 0 {
			g.caps.Set(graph.CapBump)
		}
	case graph.ContextVolume:
		if f&graph.FeatureSpatialVarying != 0 {
			g.caps.Set(graph.CapVolumeSpatialVarying)
		}
		if f&graph.FeatureAttributeDependency != 0 {
			g.caps.Set(graph.CapVolumeAttributeDependency)
		}
	}
	if f&graph.FeatureIntegratorDependency != 0 {
		g.caps.Set(graph.CapIntegratorDependency)
	}
}

func (g *generator) generateClosureNode(n *graph.Node) {
	for _, in := range n.Inputs {
		if g.linked(in) {
			g.generateNodes(resolve.Dependencies(in, g.cctx, g.done, nil, g.policy))
		}
	}

	name := "SurfaceMixWeight"
	if g.cctx == graph.ContextVolume {
		name = "VolumeMixWeight"
	}
	if w := n.Input(name); w != nil && (g.linked(w) || w.Value.Float() != 1) {
		g.mixWeight = g.stackAssign(w)
	} else {
		g.mixWeight = StackInvalid
	}
	g.generateNode(n)
	g.mixWeight = StackInvalid

	if g.cctx != graph.ContextSurface {
		return
	}
	f := n.Features()
	if f&graph.FeatureEmission != 0 {
		g.caps.Set(graph.CapSurfaceEmission)
	}
	if f&graph.FeatureTransparent != 0 {
		g.caps.Set(graph.CapSurfaceTransparent)
	}
	if f&graph.FeatureBSSRDF != 0 {
		g.caps.Set(graph.CapSurfaceBSSRDF)
		if f&graph.FeatureBSSRDFBump != 0 {
			g.caps.Set(graph.CapBSSRDFBump)
		}
	}
}

// generateSharedClosures emits the closures of a branch that the other
// branch also reaches, descending through closures that are not shared.
func (g *generator) generateSharedClosures(root, n *graph.Node, shared resolve.NodeSet) {
	if shared.Has(n) {
		g.generateMultiClosure(root, n)
		return
	}
	for _, in := range n.Inputs {
		if in.Type == graph.TypeClosure && g.linked(in) {
			g.generateSharedClosures(root, in.Link.Parent, shared)
		}
	}
}

// generateMultiClosure emits a closure tree. A mix with a linked factor
// jumps over the branch whose weight is zero; nodes both branches need are
// emitted before the first jump.
func (g *generator) generateMultiClosure(root, n *graph.Node) {
	if g.err != nil || g.closureDone.Has(n) {
		return
	}
	g.closureDone.Add(n)

	if n.Special() != graph.SpecialCombineClosure {
		g.generateClosureNode(n)
		g.done.Add(n)
		return
	}

	cl1, cl2 := n.Input("Closure1"), n.Input("Closure2")
	if !g.linked(cl1) && !g.linked(cl2) {
		g.done.Add(n)
		return
	}

	fac := n.Input("Fac")
	if g.linked(fac) {
		g.generateNodes(resolve.Dependencies(fac, g.cctx, g.done, nil, g.policy))

		deps1 := resolve.Dependencies(cl1, g.cctx, g.done, nil, g.policy)
		deps2 := resolve.Dependencies(cl2, g.cctx, g.done, nil, g.policy)
		shared := deps1.Intersect(deps2)
		if root != n {
			for _, in := range root.Inputs {
				rootDeps := resolve.Dependencies(in, g.cctx, g.done, n, g.policy)
				shared.AddAll(rootDeps.Intersect(deps1))
				shared.AddAll(rootDeps.Intersect(deps2))
			}
		}
		if g.aovDeps.Len() > 0 {
			shared.AddAll(g.aovDeps.Intersect(deps1))
			shared.AddAll(g.aovDeps.Intersect(deps2))
		}
		if shared.Len() > 0 {
			if g.linked(cl1) {
				g.generateSharedClosures(root, cl1.Link.Parent, shared)
			}
			if g.linked(cl2) {
				g.generateSharedClosures(root, cl2.Link.Parent, shared)
			}
			g.generateNodes(shared)
		}

		facOff := g.stackAssign(fac)
		if g.linked(cl1) {
			at := g.add(OpJumpIfOne, 0, facOff, 0)
			g.generateMultiClosure(root, cl1.Link.Parent)
			g.instrs[at][1] = word(len(g.instrs) - at - 1)
		}
		if g.linked(cl2) {
			at := g.add(OpJumpIfZero, 0, facOff, 0)
			g.generateMultiClosure(root, cl2.Link.Parent)
			g.instrs[at][1] = word(len(g.instrs) - at - 1)
		}
		g.done.Add(n)
		g.release(n)
		return
	}

	if g.linked(cl1) {
		g.generateMultiClosure(root, cl1.Link.Parent)
	}
	if g.linked(cl2) {
		g.generateMultiClosure(root, cl2.Link.Parent)
	}
	g.done.Add(n)
}

// compileOutput writes the context result held by the Output node.
func (g *generator) compileOutput(out *graph.Node) {
	switch g.cctx {
	case graph.ContextDisplacement:
		if in := out.Input("Displacement"); g.linked(in) {
			g.add(OpSetDisplacement, g.stackAssign(in), 0, 0)
		}
	case graph.ContextBump:
		if in := out.Input("Normal"); g.linked(in) {
			g.add(OpSetNormal, g.stackAssign(in), 0, 0)
		}
	}
}

func (g *generator) aovID(name string) int {
	if id, ok := g.aovIndex[name]; ok {
		return id
	}
	id := len(g.aovNames)
	g.aovIndex[name] = id
	g.aovNames = append(g.aovNames, name)
	return id
}

func (g *generator) attributeID(name string) int {
	if id, ok := g.attrs[name]; ok {
		return id
	}
	id := len(g.attrNames)
	g.attrs[name] = id
	g.attrNames = append(g.attrNames, name)
	return id
}
