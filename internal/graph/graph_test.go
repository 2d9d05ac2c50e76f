package graph

import (
	"errors"
	"slices"
	"testing"

	"github.com/soypat/geometry/ms3"
)

func TestConnectChecksTypes(t *testing.T) {
	g := New()
	em := g.AddKind(KindEmission)
	m := g.AddKind(KindMath)
	if err := g.Connect(em.Output("Emission"), m.Input("Value1")); !errors.Is(err, ErrBadLink) {
		t.Fatalf("closure -> float: expected ErrBadLink, got %v", err)
	}
	col := g.AddKind(KindColor)
	if err := g.Connect(col.Output("Color"), g.Output().Input("Displacement")); err != nil {
		t.Fatalf("color -> vector should convert: %v", err)
	}
	other := New()
	if err := g.Connect(other.AddKind(KindValue).Output("Value"), m.Input("Value1")); !errors.Is(err, ErrForeignNode) {
		t.Fatalf("expected ErrForeignNode, got %v", err)
	}
}

func TestConnectReplacesExistingLink(t *testing.T) {
	g := New()
	a := g.AddKind(KindValue)
	b := g.AddKind(KindValue)
	m := g.AddKind(KindMath)
	g.MustConnect(a.Output("Value"), m.Input("Value1"))
	g.MustConnect(b.Output("Value"), m.Input("Value1"))
	if len(a.Output("Value").Links) != 0 {
		t.Fatalf("old source still lists the input")
	}
	if m.Input("Value1").Link != b.Output("Value") {
		t.Fatalf("link not replaced")
	}
}

func TestFinalizeRemovesUnreachableButKeepsAOV(t *testing.T) {
	g := New()
	em := g.AddKind(KindEmission)
	g.MustConnect(em.Output("Emission"), g.Output().Input("Surface"))
	orphan := g.AddKind(KindMath)
	aov := g.AddKind(KindAOVOutput)
	val := g.AddKind(KindValue)
	g.MustConnect(val.Output("Value"), aov.Input("Value"))

	rep := g.Finalize(FinalizeOptions{})
	if rep.Removed != 1 {
		t.Fatalf("removed = %d, want 1", rep.Removed)
	}
	if g.Node(orphan.ID) != nil {
		t.Fatalf("orphan survived")
	}
	if g.Node(aov.ID) == nil || g.Node(val.ID) == nil {
		t.Fatalf("aov subgraph removed")
	}
}

func TestFinalizeMergesDuplicates(t *testing.T) {
	g := New()
	a := g.AddKind(KindValue)
	b := g.AddKind(KindValue)
	_ = a.SetParam("value", FloatValue(2))
	_ = b.SetParam("value", FloatValue(2))
	m := g.AddKind(KindMath)
	g.MustConnect(a.Output("Value"), m.Input("Value1"))
	g.MustConnect(b.Output("Value"), m.Input("Value2"))
	disp := g.AddKind(KindDisplacement)
	g.MustConnect(m.Output("Value"), disp.Input("Height"))
	g.MustConnect(disp.Output("Displacement"), g.Output().Input("Displacement"))

	rep := g.Finalize(FinalizeOptions{})
	if rep.Merged != 1 {
		t.Fatalf("merged = %d, want 1", rep.Merged)
	}
	if m.Input("Value1").Link.Parent != m.Input("Value2").Link.Parent {
		t.Fatalf("inputs not redirected to the surviving node")
	}
}

func TestFinalizeBreaksCycles(t *testing.T) {
	g := New()
	a := g.AddKind(KindMath)
	b := g.AddKind(KindMath)
	g.MustConnect(a.Output("Value"), b.Input("Value1"))
	g.MustConnect(b.Output("Value"), a.Input("Value1"))
	disp := g.AddKind(KindDisplacement)
	g.MustConnect(a.Output("Value"), disp.Input("Height"))
	g.MustConnect(disp.Output("Displacement"), g.Output().Input("Displacement"))

	rep := g.Finalize(FinalizeOptions{})
	if len(rep.BrokenLinks) != 1 {
		t.Fatalf("broken = %v, want one link", rep.BrokenLinks)
	}
}

func TestFinalizeSynthesisesBump(t *testing.T) {
	g := New()
	h := g.AddKind(KindValue)
	disp := g.AddKind(KindDisplacement)
	g.MustConnect(h.Output("Value"), disp.Input("Height"))
	g.MustConnect(disp.Output("Displacement"), g.Output().Input("Displacement"))

	g.Finalize(FinalizeOptions{Bump: true})

	normal := g.Output().Input("Normal")
	if normal.Link == nil || normal.Link.Parent.Kind != KindBump {
		t.Fatalf("Output.Normal not driven by a bump node")
	}
	bump := normal.Link.Parent
	for i, name := range []string{"SampleCenter", "SampleX", "SampleY"} {
		in := bump.Input(name)
		if in.Link == nil || in.Link.Parent.Kind != KindVectorMath {
			t.Fatalf("%s not linked to a projection", name)
		}
		want := []BumpOffset{BumpCenter, BumpDX, BumpDY}[i]
		if got := in.Link.Parent.Input("Vector1").Link.Parent; got.Kind != KindDisplacement || got.Bump != want {
			t.Fatalf("%s fed by %s (bump %s), want displacement copy at %s", name, got, got.Bump, want)
		}
	}
	if disp.Bump != BumpNone || g.Output().Input("Displacement").Link.Parent != disp {
		t.Fatalf("original displacement subgraph must stay attached")
	}
}

func TestFinalizeRefinesUserBump(t *testing.T) {
	g := New()
	h := g.AddKind(KindValue)
	bump := g.AddKind(KindBump)
	diff := g.AddKind(KindDiffuseBSDF)
	g.MustConnect(h.Output("Value"), bump.Input("Height"))
	g.MustConnect(bump.Output("Normal"), diff.Input("Normal"))
	g.MustConnect(diff.Output("BSDF"), g.Output().Input("Surface"))

	g.Finalize(FinalizeOptions{})

	if bump.Input("Height").Link != nil {
		t.Fatalf("Height still linked")
	}
	if bump.Input("SampleCenter").Link.Parent != h {
		t.Fatalf("center sample must reuse the original height node")
	}
	if x := bump.Input("SampleX").Link.Parent; x == h || x.Bump != BumpDX {
		t.Fatalf("SampleX not fed by a dx copy")
	}
}

func TestFinalizeTransformsMixClosure(t *testing.T) {
	g := New()
	mix := g.AddKind(KindMixClosure)
	mix.Input("Fac").Value = FloatValue(0.25)
	d := g.AddKind(KindDiffuseBSDF)
	e := g.AddKind(KindEmission)
	g.MustConnect(d.Output("BSDF"), mix.Input("Closure1"))
	g.MustConnect(e.Output("Emission"), mix.Input("Closure2"))
	g.MustConnect(mix.Output("Closure"), g.Output().Input("Surface"))

	g.Finalize(FinalizeOptions{})

	w1 := d.Input("SurfaceMixWeight").Link
	w2 := e.Input("SurfaceMixWeight").Link
	if w1 == nil || w2 == nil {
		t.Fatalf("leaf weights not linked")
	}
	if w1.Parent != w2.Parent || w1.Parent.Kind != KindMixClosureWeight {
		t.Fatalf("leaves must share one weight node")
	}
	if w1.Name != "Weight1" || w2.Name != "Weight2" {
		t.Fatalf("weights crossed: %s %s", w1.Name, w2.Name)
	}
	if got := w1.Parent.Input("Fac").Value.Float(); got != 0.25 {
		t.Fatalf("weight fac = %v", got)
	}
}

func TestFinalizeSingleClosureWeightIsOne(t *testing.T) {
	g := New()
	e := g.AddKind(KindEmission)
	g.MustConnect(e.Output("Emission"), g.Output().Input("Surface"))
	g.Finalize(FinalizeOptions{})
	w := e.Input("SurfaceMixWeight")
	if w.Link != nil || w.Value.Float() != 1 {
		t.Fatalf("weight = %v linked=%v, want constant 1", w.Value, w.Link != nil)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	g := New()
	mix := g.AddKind(KindMixClosure)
	d := g.AddKind(KindDiffuseBSDF)
	e := g.AddKind(KindEmission)
	g.MustConnect(d.Output("BSDF"), mix.Input("Closure1"))
	g.MustConnect(e.Output("Emission"), mix.Input("Closure2"))
	g.MustConnect(mix.Output("Closure"), g.Output().Input("Surface"))
	g.Finalize(FinalizeOptions{Bump: true})
	before := g.Dump()
	rep := g.Finalize(FinalizeOptions{Bump: true})
	if rep.Removed != 0 || rep.Merged != 0 || len(rep.BrokenLinks) != 0 {
		t.Fatalf("second finalize did work: %+v", rep)
	}
	if g.Dump() != before {
		t.Fatalf("graph changed on second finalize")
	}
}

func TestPackVectorArraysTightly(t *testing.T) {
	v := Vec3ArrayValue(TypeColorArray, ms3.Vec{X: 1, Y: 2, Z: 3}, ms3.Vec{X: 4, Y: 5, Z: 6})
	got := Pack(v).Floats
	if !slices.Equal(got, []float32{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("packed = %v", got)
	}
	d, ok := DescribeParam(v)
	if !ok || d.ArrayLen != 2 || d.Semantics != SemColor || d.Aggregate != AggVec3 {
		t.Fatalf("desc = %+v", d)
	}
	if p := Pack(BoolArrayValue(true, false)).Ints; !slices.Equal(p, []int32{1, 0}) {
		t.Fatalf("bool array = %v", p)
	}
	if d, _ := DescribeParam(BoolValue(true)); d.Base != BaseInt {
		t.Fatalf("bool must bind as int, got %s", d)
	}
	if n := len(Pack(TransformValue(Identity())).Floats); n != 16 {
		t.Fatalf("transform packs %d floats", n)
	}
}

func TestPackTransformIsRowMajor(t *testing.T) {
	rows := []float32{
		1, 0, 0, 5,
		0, 2, 0, 6,
		0, 0, 3, 7,
		0, 0, 0, 1,
	}
	m := ms3.NewMat4(rows)
	id := Identity().Array()
	tests := []struct {
		name string
		v    Value
		want []float32
	}{
		{"single", TransformValue(m), rows},
		{"array", TransformArrayValue(Identity(), m), append(id[:], rows...)},
	}
	for _, tt := range tests {
		if got := Pack(tt.v).Floats; !slices.Equal(got, tt.want) {
			t.Fatalf("%s: packed = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStackWidth(t *testing.T) {
	cases := map[SocketType]int{
		TypeFloat:   1,
		TypeInt:     1,
		TypeColor:   3,
		TypeNormal:  3,
		TypePoint2:  2,
		TypeClosure: 0,
		TypeString:  0,
	}
	for typ, want := range cases {
		if got := StackWidth(typ); got != want {
			t.Fatalf("StackWidth(%s) = %d, want %d", typ, got, want)
		}
	}
}

func TestValueConvertAndEqual(t *testing.T) {
	v, ok := FloatValue(0.5).Convert(TypeColor)
	if !ok || v.Vec() != (ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5}) {
		t.Fatalf("float -> color = %v", v)
	}
	if !ColorValue(1, 2, 3).Equal(ColorValue(1, 2, 3)) || ColorValue(1, 2, 3).Equal(ColorValue(1, 2, 4)) {
		t.Fatalf("equality broken")
	}
	if _, ok := StringValue("x").Convert(TypeFloat); ok {
		t.Fatalf("string must not convert to float")
	}
}
