package resolve

import (
	"errors"
	"slices"
	"testing"

	"shadekit/internal/graph"
)

func names(nodes []*graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func named(g *graph.Graph, k graph.Kind, name string) *graph.Node {
	n := g.AddKind(k)
	n.Name = name
	return n
}

func emissionGraph(t *testing.T) (*graph.Graph, *graph.Node) {
	t.Helper()
	g := graph.New()
	col := named(g, graph.KindColor, "col")
	val := named(g, graph.KindValue, "val")
	em := named(g, graph.KindEmission, "em")
	named(g, graph.KindMath, "orphan")
	g.MustConnect(col.Output("Color"), em.Input("Color"))
	g.MustConnect(val.Output("Value"), em.Input("Strength"))
	g.MustConnect(em.Output("Emission"), g.Output().Input("Surface"))
	return g, em
}

func TestSkipInputTable(t *testing.T) {
	g := graph.New()
	out := g.Output()
	bump := g.AddKind(graph.KindBump)
	disp := g.AddKind(graph.KindDisplacement)
	em := g.AddKind(graph.KindEmission)
	g.MustConnect(bump.Output("Normal"), disp.Input("Normal"))

	cases := []struct {
		node *graph.Node
		in   string
		ctx  graph.Context
		want bool
	}{
		{out, "Surface", graph.ContextSurface, false},
		{out, "Surface", graph.ContextVolume, true},
		{out, "Volume", graph.ContextVolume, false},
		{out, "Volume", graph.ContextBump, true},
		{out, "Displacement", graph.ContextDisplacement, false},
		{out, "Displacement", graph.ContextSurface, true},
		{out, "Normal", graph.ContextBump, false},
		{out, "Normal", graph.ContextSurface, true},
		{bump, "Height", graph.ContextBump, true},
		{bump, "Height", graph.ContextSurface, true},
		{bump, "Strength", graph.ContextBump, false},
		{disp, "Normal", graph.ContextDisplacement, true},
		{disp, "Normal", graph.ContextSurface, false},
		{disp, "Height", graph.ContextDisplacement, false},
		{em, "SurfaceMixWeight", graph.ContextSurface, true},
		{em, "Color", graph.ContextSurface, false},
	}
	for _, tc := range cases {
		got := SkipInput(tc.node, tc.node.Input(tc.in), tc.ctx)
		if got != tc.want {
			t.Fatalf("SkipInput(%s.%s, %s) = %v, want %v", tc.node.Kind, tc.in, tc.ctx, got, tc.want)
		}
	}
	if SkipInputSVM(em, em.Input("SurfaceMixWeight"), graph.ContextSurface) {
		t.Fatalf("bytecode policy must traverse internal inputs")
	}
}

func TestDependenciesExcludeDeadNodes(t *testing.T) {
	g, _ := emissionGraph(t)
	deps := Dependencies(g.Output().Input("Surface"), graph.ContextSurface, NewNodeSet(), nil, SkipInput)
	got := names(deps.Nodes())
	want := []string{"col", "val", "em"}
	if !slices.Equal(got, want) {
		t.Fatalf("deps = %v, want %v", got, want)
	}
}

func TestDependenciesOfUnlinkedInputIsEmpty(t *testing.T) {
	g, _ := emissionGraph(t)
	deps := Dependencies(g.Output().Input("Displacement"), graph.ContextDisplacement, NewNodeSet(), nil, SkipInput)
	if deps.Len() != 0 {
		t.Fatalf("expected empty set, got %v", names(deps.Nodes()))
	}
}

func TestDependenciesRespectDoneAndSkip(t *testing.T) {
	g, em := emissionGraph(t)
	col := g.Lookup("col")
	deps := Dependencies(g.Output().Input("Surface"), graph.ContextSurface, NewNodeSet(col), nil, SkipInput)
	if deps.Has(col) {
		t.Fatalf("done node must not be revisited")
	}
	deps = Dependencies(g.Output().Input("Surface"), graph.ContextSurface, NewNodeSet(), em, SkipInput)
	if deps.Len() != 0 {
		t.Fatalf("skip node must not be entered, got %v", names(deps.Nodes()))
	}
}

func diamond(t *testing.T) (*graph.Graph, NodeSet) {
	t.Helper()
	g := graph.New()
	src := named(g, graph.KindValue, "src")
	c := named(g, graph.KindMath, "c")
	b := named(g, graph.KindMath, "b")
	a := named(g, graph.KindMath, "a")
	g.MustConnect(src.Output("Value"), a.Input("Value1"))
	g.MustConnect(src.Output("Value"), b.Input("Value1"))
	g.MustConnect(a.Output("Value"), c.Input("Value1"))
	g.MustConnect(b.Output("Value"), c.Input("Value2"))
	return g, NewNodeSet(src, a, b, c)
}

func TestScheduleWavesAreDeterministic(t *testing.T) {
	_, set := diamond(t)
	plan, err := Schedule(set, NewNodeSet(), graph.ContextSurface, SkipInput)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	want := [][]string{{"src"}, {"b", "a"}, {"c"}}
	if len(plan.Waves) != len(want) {
		t.Fatalf("waves = %d, want %d", len(plan.Waves), len(want))
	}
	for i, w := range want {
		if got := names(plan.Waves[i]); !slices.Equal(got, w) {
			t.Fatalf("wave %d = %v, want %v", i, got, w)
		}
	}
	again, _ := Schedule(set, NewNodeSet(), graph.ContextSurface, SkipInput)
	if !slices.Equal(names(plan.Order), names(again.Order)) {
		t.Fatalf("order changed between runs")
	}
}

func TestScheduleTreatsDoneSourcesAsReady(t *testing.T) {
	g, _ := diamond(t)
	src := g.Lookup("src")
	set := NewNodeSet(g.Lookup("a"), g.Lookup("b"), g.Lookup("c"))
	plan, err := Schedule(set, NewNodeSet(src), graph.ContextSurface, SkipInput)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := names(plan.Order); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Fatalf("order = %v", got)
	}
	if _, err := Schedule(set, NewNodeSet(), graph.ContextSurface, SkipInput); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestScheduleDetectsCycle(t *testing.T) {
	g := graph.New()
	a := named(g, graph.KindMath, "a")
	b := named(g, graph.KindMath, "b")
	g.MustConnect(a.Output("Value"), b.Input("Value1"))
	g.MustConnect(b.Output("Value"), a.Input("Value1"))
	_, err := Schedule(NewNodeSet(a, b), NewNodeSet(), graph.ContextSurface, SkipInput)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}
