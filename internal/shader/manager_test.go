package shader

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
	"shadekit/internal/osl"
	"shadekit/internal/svm"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(shader string, st Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Shader == shader && ev.Status == st {
			n++
		}
	}
	return n
}

func emissionOnly() *graph.Graph {
	g := graph.New()
	em := g.AddKind(graph.KindEmission)
	g.MustConnect(em.Output("Emission"), g.Output().Input("Surface"))
	return g
}

// heavyVolume has a volume tree that needs more than four stack slots.
func heavyVolume() *graph.Graph {
	g := emissionOnly()
	col := g.AddKind(graph.KindColor)
	mixRGB := g.AddKind(graph.KindMixRGB)
	vol := g.AddKind(graph.KindVolumeAbsorption)
	g.MustConnect(col.Output("Color"), mixRGB.Input("Color1"))
	g.MustConnect(mixRGB.Output("Color"), vol.Input("Color"))
	g.MustConnect(vol.Output("Volume"), g.Output().Input("Volume"))
	return g
}

func TestFailureIsolation(t *testing.T) {
	x := New("x", heavyVolume())
	y := New("y", emissionOnly())
	bag := diag.NewBag(32)
	rep := diag.NewLockedReporter(diag.BagReporter{Bag: bag})
	m := NewManager(NewSVMBackend(svm.WithStackSize(4), svm.WithReporter(rep)), WithJobs(2))
	defer m.Close()

	if err := m.HostUpdate(context.Background(), []*Shader{x, y}); err != nil {
		t.Fatalf("host update: %v", err)
	}
	if got := x.State(graph.ContextVolume); got != StateFailed {
		t.Fatalf("x volume = %s, want failed", got)
	}
	if got := x.State(graph.ContextSurface); got != StateValid {
		t.Fatalf("x surface = %s, want valid", got)
	}
	if got := y.State(graph.ContextSurface); got != StateValid {
		t.Fatalf("y surface = %s, want valid", got)
	}
	for _, c := range []graph.Context{graph.ContextDisplacement, graph.ContextBump} {
		if x.State(c) != StateClean || y.State(c) != StateClean {
			t.Fatalf("%s should be clean: x=%s y=%s", c, x.State(c), y.State(c))
		}
	}
	if x.Modified() || y.Modified() {
		t.Fatalf("compiled shaders still modified")
	}
	if !bag.HasErrors() {
		t.Fatalf("stack exhaustion not reported")
	}
	for _, d := range bag.Items() {
		if d.Subject.Shader != "x" {
			t.Fatalf("diagnostic leaked to shader %s: %s", d.Subject.Shader, d.Message)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	s := New("s", emissionOnly())
	if s.State(graph.ContextSurface) != StateDirty || !s.Modified() {
		t.Fatalf("new shader should be dirty")
	}
	sink := &recordingSink{}
	m := NewManager(NewSVMBackend(), WithProgress(sink))
	ctx := context.Background()

	if err := m.HostUpdate(ctx, []*Shader{s}); err != nil {
		t.Fatalf("host update: %v", err)
	}
	if s.State(graph.ContextSurface) != StateValid || s.State(graph.ContextVolume) != StateClean {
		t.Fatalf("states after compile: surface=%s volume=%s", s.State(graph.ContextSurface), s.State(graph.ContextVolume))
	}
	if !s.Caps().Has(graph.CapSurfaceEmission) {
		t.Fatalf("caps = %s", s.Caps())
	}
	first := s.Program()

	if err := m.HostUpdate(ctx, []*Shader{s}); err != nil {
		t.Fatalf("second host update: %v", err)
	}
	if s.Program() != first || sink.count("s", StatusWorking) != 1 {
		t.Fatalf("unmodified shader recompiled")
	}

	s.TagUpdate()
	for _, c := range graph.Contexts {
		if s.State(c) != StateDirty {
			t.Fatalf("%s = %s after TagUpdate", c, s.State(c))
		}
	}
	if err := m.HostUpdate(ctx, []*Shader{s}); err != nil {
		t.Fatalf("third host update: %v", err)
	}
	if s.Program() == first || !slices.Equal(s.Program().Instrs, first.Instrs) {
		t.Fatalf("recompiled program should be new and identical")
	}
	if sink.count("s", StatusDone) != 2 {
		t.Fatalf("done events = %d", sink.count("s", StatusDone))
	}
}

func TestCancelledShaderStaysDirty(t *testing.T) {
	s := New("s", emissionOnly())
	m := NewManager(NewSVMBackend())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.HostUpdate(ctx, []*Shader{s})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if s.State(graph.ContextSurface) != StateDirty || !s.Modified() || s.Program() != nil {
		t.Fatalf("cancelled shader: state=%s modified=%t", s.State(graph.ContextSurface), s.Modified())
	}
}

func TestDeviceTableJumps(t *testing.T) {
	a := New("a", emissionOnly())
	b := New("b", heavyVolume())
	m := NewManager(NewSVMBackend())
	ctx := context.Background()
	if err := m.HostUpdate(ctx, []*Shader{a, b}); err != nil {
		t.Fatalf("host update: %v", err)
	}
	var tbl DeviceTable
	if err := m.DeviceUpdate(ctx, &tbl); err != nil {
		t.Fatalf("device update: %v", err)
	}
	if tbl.StackSize != svm.StackSize || len(tbl.Names) != 2 || tbl.Nodes[2].Op() != svm.OpEnd {
		t.Fatalf("table header = %+v", tbl.Names)
	}
	for _, s := range []*Shader{a, b} {
		if tbl.Nodes[s.ID].Op() != svm.OpShaderJump {
			t.Fatalf("shader %s has no jump record", s.Name)
		}
		p := s.Program()
		for _, c := range []graph.Context{graph.ContextSurface, graph.ContextVolume, graph.ContextDisplacement} {
			at, ok := tbl.Entry(s.ID, c)
			if !ok {
				t.Fatalf("no entry for %s/%s", s.Name, c)
			}
			if tbl.Nodes[at] != p.Instrs[p.EntryFor(c)] {
				t.Fatalf("%s/%s jumps to %v, want %v", s.Name, c, tbl.Nodes[at], p.Instrs[p.EntryFor(c)])
			}
		}
	}

	var buf bytes.Buffer
	n, err := tbl.WriteTo(&buf)
	if err != nil || n != int64(buf.Len()) {
		t.Fatalf("write: n=%d len=%d err=%v", n, buf.Len(), err)
	}
	back, err := ReadDeviceTable(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !slices.Equal(back.Nodes, tbl.Nodes) || !slices.Equal(back.Caps, tbl.Caps) {
		t.Fatalf("table changed through encoding")
	}
}

func TestUncompiledShaderJumpsToEnd(t *testing.T) {
	a := New("a", emissionOnly())
	m := NewManager(NewSVMBackend())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = m.HostUpdate(ctx, []*Shader{a})

	var tbl DeviceTable
	if err := m.DeviceUpdate(context.Background(), &tbl); err != nil {
		t.Fatalf("device update: %v", err)
	}
	at, _ := tbl.Entry(0, graph.ContextSurface)
	if tbl.Nodes[at].Op() != svm.OpEnd {
		t.Fatalf("uncompiled shader should evaluate to nothing, got %v", tbl.Nodes[at])
	}
}

func TestOSLBackendSerialisesAndReleases(t *testing.T) {
	rt := osl.NewRuntime(osl.Config{})
	m := NewManager(NewOSLBackend(rt), WithJobs(8))
	if rt.Users() != 1 {
		t.Fatalf("backend did not acquire the runtime")
	}
	shaders := []*Shader{New("a", emissionOnly()), New("b", emissionOnly())}
	ctx := context.Background()
	if err := m.HostUpdate(ctx, shaders); err != nil {
		t.Fatalf("host update: %v", err)
	}
	var tbl DeviceTable
	if err := m.DeviceUpdate(ctx, &tbl); err != nil {
		t.Fatalf("device update: %v", err)
	}
	if len(tbl.Groups) != 2 || tbl.Nodes != nil {
		t.Fatalf("osl table = %+v", tbl)
	}
	for i, s := range shaders {
		if s.State(graph.ContextSurface) != StateValid {
			t.Fatalf("%s surface = %s", s.Name, s.State(graph.ContextSurface))
		}
		if tbl.Groups[i].Get(graph.ContextSurface) != s.Group(graph.ContextSurface) || tbl.Groups[i].Volume != nil {
			t.Fatalf("groups of %s not published", s.Name)
		}
	}
	reports := m.Report()
	if len(reports) != 2 || reports[0].Backend != "osl" || reports[0].Layers == 0 {
		t.Fatalf("reports = %+v", reports)
	}
	m.Close()
	m.Close()
	if rt.Users() != 0 {
		t.Fatalf("runtime users = %d after close", rt.Users())
	}
}
