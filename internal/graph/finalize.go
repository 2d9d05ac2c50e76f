package graph

import (
	"strconv"
	"strings"
)

type FinalizeOptions struct {
	// Bump derives a bump-mapped normal from the Displacement input.
	Bump bool
}

// FinalizeReport lists the rewrites Finalize performed.
type FinalizeReport struct {
	// BrokenLinks names inputs disconnected to break cycles.
	BrokenLinks []string
	Removed     int
	Merged      int
	BumpCopies  int
}

// Finalize prepares the graph for compilation. It removes cycles and
// unreachable nodes, merges duplicate nodes, expands bump nodes, derives the
// bump subgraph from displacement when requested, and rewrites closure mix
// trees so each leaf closure carries its own weight. Calling it again is a no-op.
func (g *Graph) Finalize(opts FinalizeOptions) FinalizeReport {
	var rep FinalizeReport
	if g.finalized {
		return rep
	}
	rep.BrokenLinks = g.breakCycles()
	rep.Removed = g.clean()
	rep.Merged = g.deduplicate()
	rep.BumpCopies = g.refineBumpNodes()
	if opts.Bump && g.bumpFromDisplacement() {
		rep.BumpCopies += 3
	}
	if in := g.output.Input("Surface"); in.Link != nil {
		g.transformMultiClosure(in.Link.Parent, nil, false)
	}
	if in := g.output.Input("Volume"); in.Link != nil {
		g.transformMultiClosure(in.Link.Parent, nil, true)
	}
	g.finalized = true
	return rep
}

// roots are the nodes compilation starts from: the Output node and AOV outputs.
func (g *Graph) roots() []*Node {
	out := []*Node{g.output}
	for _, n := range g.nodes {
		if n.Special() == SpecialAOV {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) breakCycles() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[*Node]int, len(g.nodes))
	var broken []string
	var visit func(*Node)
	visit = func(n *Node) {
		state[n] = onStack
		for _, in := range n.Inputs {
			if in.Link == nil {
				continue
			}
			src := in.Link.Parent
			switch state[src] {
			case onStack:
				broken = append(broken, in.String())
				g.Disconnect(in)
			case unvisited:
				visit(src)
			}
		}
		state[n] = done
	}
	for _, n := range g.nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return broken
}

func (g *Graph) clean() int {
	keep := make(map[*Node]bool, len(g.nodes))
	var mark func(*Node)
	mark = func(n *Node) {
		if keep[n] {
			return
		}
		keep[n] = true
		for _, in := range n.Inputs {
			if in.Link != nil {
				mark(in.Link.Parent)
			}
		}
	}
	for _, r := range g.roots() {
		mark(r)
	}
	var dead []*Node
	for _, n := range g.nodes {
		if !keep[n] {
			dead = append(dead, n)
		}
	}
	for _, n := range dead {
		g.Remove(n)
	}
	return len(dead)
}

// topoOrder returns nodes with every link source before its consumers,
// visiting in ID order for determinism.
func (g *Graph) topoOrder() []*Node {
	seen := make(map[*Node]bool, len(g.nodes))
	order := make([]*Node, 0, len(g.nodes))
	var visit func(*Node)
	visit = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, in := range n.Inputs {
			if in.Link != nil {
				visit(in.Link.Parent)
			}
		}
		order = append(order, n)
	}
	for _, n := range g.nodes {
		visit(n)
	}
	return order
}

func (g *Graph) deduplicate() int {
	seen := make(map[string]*Node)
	merged := 0
	for _, n := range g.topoOrder() {
		if n.Special() == SpecialOutput || n.Special() == SpecialAOV || len(n.Outputs) == 0 {
			continue
		}
		key := nodeKey(n)
		kept, ok := seen[key]
		if !ok {
			seen[key] = n
			continue
		}
		for i, out := range n.Outputs {
			for _, to := range append([]*Input(nil), out.Links...) {
				g.MustConnect(kept.Outputs[i], to)
			}
		}
		g.Remove(n)
		merged++
	}
	return merged
}

// nodeKey is equal for two nodes that compute the same result.
func nodeKey(n *Node) string {
	var b strings.Builder
	b.WriteString(n.Kind.String())
	b.WriteByte('/')
	b.WriteString(n.Bump.String())
	if n.Script != nil {
		b.WriteString("/script:")
		b.WriteString(n.Script.Path)
		b.WriteByte(':')
		b.WriteString(n.Script.Hash)
	}
	for _, p := range n.Params {
		b.WriteString("|p:")
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Value.Key())
	}
	for _, in := range n.Inputs {
		b.WriteString("|i:")
		b.WriteString(in.Name)
		if in.Link != nil {
			b.WriteString("<-")
			b.WriteString(strconv.Itoa(in.Link.Parent.ID))
			b.WriteByte('.')
			b.WriteString(in.Link.Name)
		} else {
			b.WriteByte('=')
			b.WriteString(in.Value.Key())
		}
	}
	for _, out := range n.Outputs {
		b.WriteString("|o:")
		b.WriteString(out.Name)
	}
	return b.String()
}

// refineBumpNodes feeds each bump node's Height subgraph into its three
// sample inputs, evaluating two copies at offset shading points.
func (g *Graph) refineBumpNodes() int {
	var bumps []*Node
	for _, n := range g.nodes {
		if n.Special() == SpecialBump && n.Input("Height").Link != nil {
			bumps = append(bumps, n)
		}
	}
	for _, n := range bumps {
		height := n.Input("Height")
		set := g.Upstream(height)
		src := height.Link
		dx := g.copyNodes(set, BumpDX)
		dy := g.copyNodes(set, BumpDY)
		g.MustConnect(dx[src.Parent].Output(src.Name), n.Input("SampleX"))
		g.MustConnect(dy[src.Parent].Output(src.Name), n.Input("SampleY"))
		g.MustConnect(src, n.Input("SampleCenter"))
		g.Disconnect(height)
	}
	return 2 * len(bumps)
}

// bumpFromDisplacement builds the Bump context: three copies of the
// displacement subgraph, projected on the normal, feed a bump node whose
// result drives the Output Normal input.
func (g *Graph) bumpFromDisplacement() bool {
	disp := g.output.Input("Displacement")
	if disp.Link == nil {
		return false
	}
	set := g.Upstream(disp)
	src := disp.Link
	geom := g.AddKind(KindGeometry)
	bump := g.AddKind(KindBump)
	_ = bump.SetParam("use_object_space", BoolValue(true))

	samples := [...]struct {
		offset BumpOffset
		input  string
	}{
		{BumpCenter, "SampleCenter"},
		{BumpDX, "SampleX"},
		{BumpDY, "SampleY"},
	}
	for _, s := range samples {
		copies := g.copyNodes(set, s.offset)
		dot := g.AddKind(KindVectorMath)
		dot.Bump = s.offset
		_ = dot.SetParam("type", EnumValue("dot_product"))
		g.MustConnect(copies[src.Parent].Output(src.Name), dot.Input("Vector1"))
		g.MustConnect(geom.Output("Normal"), dot.Input("Vector2"))
		g.MustConnect(dot.Output("Value"), bump.Input(s.input))
	}

	normal := g.output.Input("Normal")
	if normal.Link != nil {
		g.MustConnect(normal.Link, bump.Input("Normal"))
	}
	g.MustConnect(bump.Output("Normal"), normal)
	return true
}

// transformMultiClosure pushes mix weights down a closure tree into the
// mix-weight input of every leaf closure. Leaves reached through several
// branches accumulate their weights.
func (g *Graph) transformMultiClosure(n *Node, weight *Output, volume bool) {
	if n.Special() == SpecialCombineClosure {
		w1, w2 := weight, weight
		if fac := n.Input("Fac"); fac != nil {
			mix := g.AddKind(KindMixClosureWeight)
			if fac.Link != nil {
				g.MustConnect(fac.Link, mix.Input("Fac"))
			} else {
				mix.Input("Fac").Value = FloatValue(fac.Value.Float())
			}
			if weight != nil {
				g.MustConnect(weight, mix.Input("Weight"))
			}
			w1, w2 = mix.Output("Weight1"), mix.Output("Weight2")
		}
		if cl := n.Input("Closure1"); cl.Link != nil {
			g.transformMultiClosure(cl.Link.Parent, w1, volume)
		}
		if cl := n.Input("Closure2"); cl.Link != nil {
			g.transformMultiClosure(cl.Link.Parent, w2, volume)
		}
		return
	}

	name := "SurfaceMixWeight"
	if volume {
		name = "VolumeMixWeight"
	}
	win := n.Input(name)
	if win == nil {
		return
	}
	value := win.Value.Float()
	if win.Link != nil || value != 0 {
		add := g.AddKind(KindMath)
		if win.Link != nil {
			g.MustConnect(win.Link, add.Input("Value1"))
			g.Disconnect(win)
		} else {
			add.Input("Value1").Value = FloatValue(value)
		}
		if weight != nil {
			g.MustConnect(weight, add.Input("Value2"))
		} else {
			add.Input("Value2").Value = FloatValue(1)
		}
		weight = add.Output("Value")
	}
	if weight != nil {
		g.MustConnect(weight, win)
	} else {
		win.Value = FloatValue(value + 1)
	}
}
