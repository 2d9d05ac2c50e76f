package shader

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"shadekit/internal/graph"
	"shadekit/internal/osl"
	"shadekit/internal/svm"
	"shadekit/internal/trace"
)

const deviceSchema = 1

// Groups holds the program groups of one shader; nil entries evaluate as
// no output.
type Groups struct {
	Surface      *osl.Group `msgpack:"surface"`
	Bump         *osl.Group `msgpack:"bump"`
	Volume       *osl.Group `msgpack:"volume"`
	Displacement *osl.Group `msgpack:"displacement"`
}

func (g *Groups) Get(c graph.Context) *osl.Group {
	switch c {
	case graph.ContextSurface:
		return g.Surface
	case graph.ContextBump:
		return g.Bump
	case graph.ContextVolume:
		return g.Volume
	case graph.ContextDisplacement:
		return g.Displacement
	}
	return nil
}

// DeviceTable is everything evaluation needs, indexed by shader ID.
//
// For bytecode, Nodes starts with one shader_jump record per shader holding
// absolute entry offsets for surface, volume and displacement, followed by a
// shared end record and the concatenated program bodies. Shaders without a
// program jump to the shared end.
type DeviceTable struct {
	Schema    int          `msgpack:"schema"`
	Backend   string       `msgpack:"backend"`
	StackSize int          `msgpack:"stack_size,omitempty"`
	Names     []string     `msgpack:"names"`
	Caps      []graph.Caps `msgpack:"caps"`
	UseMIS    []bool       `msgpack:"use_mis"`
	Nodes     []svm.Instr  `msgpack:"nodes,omitempty"`
	Groups    []Groups     `msgpack:"groups,omitempty"`
}

// jumpSlot maps a context onto its word in a shader_jump record.
func jumpSlot(c graph.Context) (int, bool) {
	switch c {
	case graph.ContextSurface:
		return 1, true
	case graph.ContextVolume:
		return 2, true
	case graph.ContextDisplacement:
		return 3, true
	}
	return 0, false
}

// Entry returns the absolute bytecode offset at which context c of shader
// id starts.
func (t *DeviceTable) Entry(id int, c graph.Context) (int, bool) {
	slot, ok := jumpSlot(c)
	if !ok || id < 0 || id >= len(t.Names) || id >= len(t.Nodes) {
		return 0, false
	}
	return int(t.Nodes[id][slot]), true
}

// DeviceUpdate rebuilds t from the programs currently installed in the
// shaders of the last host update. Programs are replaced wholesale; a shader
// that is still dirty publishes its previous program.
func (m *Manager) DeviceUpdate(ctx context.Context, t *DeviceTable) error {
	span, _ := trace.BeginCtx(ctx, trace.ScopeDriver, "device_update")
	defer span.End("")
	m.sink.OnEvent(Event{Stage: StageDevice, Status: StatusWorking})

	shaders := m.Shaders()
	*t = DeviceTable{
		Schema:    deviceSchema,
		Backend:   m.backend.Name(),
		StackSize: m.backend.StackSize(),
		Names:     make([]string, len(shaders)),
		Caps:      make([]graph.Caps, len(shaders)),
		UseMIS:    make([]bool, len(shaders)),
	}
	for i, s := range shaders {
		t.Names[i] = s.Name
		t.Caps[i] = s.Caps()
		t.UseMIS[i] = s.UseMIS
	}

	var err error
	switch m.backend.Name() {
	case "svm":
		err = t.linkBytecode(shaders)
	default:
		t.Groups = make([]Groups, len(shaders))
		for i, s := range shaders {
			t.Groups[i] = Groups{
				Surface:      s.Group(graph.ContextSurface),
				Bump:         s.Group(graph.ContextBump),
				Volume:       s.Group(graph.ContextVolume),
				Displacement: s.Group(graph.ContextDisplacement),
			}
		}
	}
	status := StatusDone
	if err != nil {
		status = StatusFailed
	}
	m.sink.OnEvent(Event{Stage: StageDevice, Status: status, Err: err})
	return err
}

func (t *DeviceTable) linkBytecode(shaders []*Shader) error {
	end := len(shaders)
	t.Nodes = make([]svm.Instr, end+1, end+1+64)
	t.Nodes[end] = svm.Instr{int32(svm.OpEnd)}
	endWord, err := safecast.Conv[int32](end)
	if err != nil {
		return fmt.Errorf("device table: %w", err)
	}
	for i, s := range shaders {
		jump := svm.Instr{int32(svm.OpShaderJump), endWord, endWord, endWord}
		p := s.Program()
		if p == nil {
			t.Nodes[i] = jump
			continue
		}
		base := len(t.Nodes)
		for _, c := range [...]graph.Context{graph.ContextSurface, graph.ContextVolume, graph.ContextDisplacement} {
			entry := p.EntryFor(c)
			if entry == svm.NoEntry {
				continue
			}
			w, err := safecast.Conv[int32](base + entry)
			if err != nil {
				return fmt.Errorf("device table: shader %s: %w", s.Name, err)
			}
			slot, _ := jumpSlot(c)
			jump[slot] = w
		}
		t.Nodes[i] = jump
		t.Nodes = append(t.Nodes, p.Instrs...)
	}
	return nil
}

// WriteTo encodes t with msgpack.
func (t *DeviceTable) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	if err := msgpack.NewEncoder(bw).Encode(t); err != nil {
		return cw.n, err
	}
	err := bw.Flush()
	return cw.n, err
}

// ReadDeviceTable decodes a table written by WriteTo.
func ReadDeviceTable(r io.Reader) (*DeviceTable, error) {
	var t DeviceTable
	if err := msgpack.NewDecoder(bufio.NewReader(r)).Decode(&t); err != nil {
		return nil, fmt.Errorf("device table: %w", err)
	}
	if t.Schema != deviceSchema {
		return nil, fmt.Errorf("device table: schema %d, want %d", t.Schema, deviceSchema)
	}
	return &t, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
