package scene

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
	"shadekit/internal/osl"
	"shadekit/internal/shader"
)

type nodeDoc struct {
	Name     string         `toml:"name"`
	Kind     string         `toml:"kind"`
	Path     string         `toml:"path"`
	Bytecode string         `toml:"bytecode"`
	Values   map[string]any `toml:"values"`
}

type linkDoc struct {
	From string `toml:"from"`
	To   string `toml:"to"`
}

type shaderDoc struct {
	Name         string    `toml:"name"`
	Displacement string    `toml:"displacement"`
	UseMIS       *bool     `toml:"use_mis"`
	Background   bool      `toml:"background"`
	Nodes        []nodeDoc `toml:"node"`
	Links        []linkDoc `toml:"link"`
}

type sceneDoc struct {
	Shaders []shaderDoc `toml:"shader"`
}

// Loader builds shaders from scene files. Script nodes need a program
// loader; without one they are reported and left out.
type Loader struct {
	Programs *osl.Loader
	Reporter diag.Reporter
}

// LoadFile parses a scene file. Problems with single nodes, values or
// links are reported and skipped; only unreadable files fail.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*shader.Shader, error) {
	var doc sceneDoc
	meta, err := toml.DecodeFile(path, &doc)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("shader") {
		return nil, fmt.Errorf("%s: no [[shader]] tables", path)
	}
	rep := l.Reporter
	if rep == nil {
		rep = diag.NopReporter{}
	}
	b := &builder{ctx: ctx, loader: l, reporter: rep, path: path, dir: filepath.Dir(path)}
	out := make([]*shader.Shader, 0, len(doc.Shaders))
	for i := range doc.Shaders {
		s, err := b.shader(&doc.Shaders[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, s)
	}
	return out, nil
}

type builder struct {
	ctx      context.Context
	loader   *Loader
	reporter diag.Reporter
	path     string
	dir      string

	name  string
	nodes map[string]*graph.Node
}

func (b *builder) subject(node string) diag.Subject {
	return diag.Subject{Path: b.path, Shader: b.name, Node: node}
}

func (b *builder) shader(doc *shaderDoc) (*shader.Shader, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("shader without name")
	}
	method, err := graph.ParseDisplacementMethod(doc.Displacement)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", doc.Name, err)
	}
	b.name = doc.Name
	g := graph.New()
	b.nodes = map[string]*graph.Node{"output": g.Output()}

	for i := range doc.Nodes {
		nd := &doc.Nodes[i]
		if _, dup := b.nodes[nd.Name]; dup || nd.Name == "" {
			diag.ReportError(b.reporter, diag.GraphDuplicate, b.subject(nd.Name), "node name missing or already used").Emit()
			continue
		}
		n := b.node(g, nd)
		if n == nil {
			continue
		}
		n.Name = nd.Name
		b.nodes[nd.Name] = n
		b.values(n, nd)
	}
	for _, ld := range doc.Links {
		b.link(g, ld)
	}

	s := shader.New(doc.Name, g)
	s.Displacement = method
	s.Background = doc.Background
	if doc.UseMIS != nil {
		s.UseMIS = *doc.UseMIS
	}
	return s, nil
}

func (b *builder) node(g *graph.Graph, nd *nodeDoc) *graph.Node {
	kind, err := graph.ParseKind(nd.Kind)
	if err != nil {
		diag.ReportError(b.reporter, diag.SceneUnknownNode, b.subject(nd.Name), err.Error()).Emit()
		return nil
	}
	if kind == graph.KindOutput {
		diag.ReportError(b.reporter, diag.SceneUnknownNode, b.subject(nd.Name), "the output node is implicit").Emit()
		return nil
	}
	if kind != graph.KindScript {
		return g.AddKind(kind)
	}

	if b.loader.Programs == nil {
		diag.ReportError(b.reporter, diag.OSLSourceUnreadable, b.subject(nd.Name), "script nodes need a program loader").Emit()
		return nil
	}
	switch {
	case nd.Path != "":
		path := nd.Path
		if ext := filepath.Ext(path); (ext == ".osl" || ext == ".oso") && !filepath.IsAbs(path) {
			path = filepath.Join(b.dir, path)
		}
		info, err := b.loader.Programs.LoadFile(b.ctx, path)
		if err != nil {
			return nil
		}
		return osl.SynthesizeNode(g, info, path, "", b.reporter)
	case nd.Bytecode != "":
		info := b.loader.Programs.LoadBytecode("", nd.Bytecode)
		return osl.SynthesizeNode(g, info, "", nd.Bytecode, b.reporter)
	}
	diag.ReportError(b.reporter, diag.SceneBadValue, b.subject(nd.Name), "script node needs path or bytecode").Emit()
	return nil
}

// values assigns constant inputs and parameters in name order so
// diagnostics are deterministic.
func (b *builder) values(n *graph.Node, nd *nodeDoc) {
	names := make([]string, 0, len(nd.Values))
	for name := range nd.Values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		raw := nd.Values[name]
		var (
			want graph.SocketType
			set  func(graph.Value) error
		)
		if in := n.Input(name); in != nil {
			want, set = in.Type, func(v graph.Value) error { return n.SetInput(name, v) }
		} else if p, ok := n.Param(name); ok {
			want, set = p.Type, func(v graph.Value) error { return n.SetParam(name, v) }
		} else {
			diag.ReportError(b.reporter, diag.SceneBadValue, b.subject(nd.Name),
				fmt.Sprintf("%s has no socket or parameter %q", n.Kind, name)).Emit()
			continue
		}
		v, err := ValueOf(raw, want)
		if err == nil {
			err = set(v)
		}
		if err != nil {
			diag.ReportError(b.reporter, diag.SceneBadValue, b.subject(nd.Name), err.Error()).Emit()
		}
	}
}

func (b *builder) link(g *graph.Graph, ld linkDoc) {
	from, fromSock, ok1 := strings.Cut(ld.From, ".")
	to, toSock, ok2 := strings.Cut(ld.To, ".")
	sub := b.subject(ld.From + " -> " + ld.To)
	if !ok1 || !ok2 {
		diag.ReportError(b.reporter, diag.SceneBadLink, sub, "links are written node.socket").Emit()
		return
	}
	src, dst := b.nodes[from], b.nodes[to]
	if src == nil || dst == nil {
		diag.ReportError(b.reporter, diag.SceneBadLink, sub, "unknown node").Emit()
		return
	}
	out, in := src.Output(fromSock), dst.Input(toSock)
	if out == nil || in == nil {
		diag.ReportError(b.reporter, diag.SceneBadLink, sub, "unknown socket").Emit()
		return
	}
	if in.Link != nil {
		diag.ReportWarning(b.reporter, diag.SceneBadLink, sub, "input already linked; replacing").Emit()
		g.Disconnect(in)
	}
	if err := g.Connect(out, in); err != nil {
		diag.ReportError(b.reporter, diag.GraphBadLink, sub, err.Error()).Emit()
	}
}

// ValueOf converts a decoded TOML value into a socket value of type want.
func ValueOf(raw any, want graph.SocketType) (graph.Value, error) {
	if want.IsArray() {
		return arrayOf(raw, want)
	}
	switch x := raw.(type) {
	case bool:
		return graph.BoolValue(x), nil
	case int64:
		i, err := safecast.Conv[int32](x)
		if err != nil {
			return graph.Value{}, err
		}
		if want == graph.TypeFloat {
			return graph.FloatValue(float32(i)), nil
		}
		return graph.IntValue(i), nil
	case float64:
		return graph.FloatValue(float32(x)), nil
	case string:
		if want == graph.TypeEnum {
			return graph.EnumValue(x), nil
		}
		return graph.StringValue(x), nil
	case []any:
		fs, err := floats(x)
		if err != nil {
			return graph.Value{}, err
		}
		switch {
		case want.IsVector3() && len(fs) == 3:
			return graph.Vec3Value(want, ms3.Vec{X: fs[0], Y: fs[1], Z: fs[2]}), nil
		case want == graph.TypePoint2 && len(fs) == 2:
			return graph.Point2Value(ms2.Vec{X: fs[0], Y: fs[1]}), nil
		case want == graph.TypeTransform && len(fs) == 16:
			return graph.TransformValue(ms3.NewMat4(fs)), nil
		}
		return graph.Value{}, fmt.Errorf("%d numbers cannot form a %s", len(fs), want)
	}
	return graph.Value{}, fmt.Errorf("unsupported value %v for %s", raw, want)
}

func arrayOf(raw any, want graph.SocketType) (graph.Value, error) {
	items, ok := raw.([]any)
	if !ok {
		return graph.Value{}, fmt.Errorf("%s needs an array", want)
	}
	elem := want.Elem()
	switch {
	case elem == graph.TypeFloat:
		fs, err := floats(items)
		if err != nil {
			return graph.Value{}, err
		}
		return graph.FloatArrayValue(fs...), nil
	case elem == graph.TypeString:
		ss := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return graph.Value{}, fmt.Errorf("%s needs strings", want)
			}
			ss = append(ss, s)
		}
		return graph.StringArrayValue(ss...), nil
	case elem.IsVector3():
		vs := make([]ms3.Vec, 0, len(items))
		for _, it := range items {
			v, err := ValueOf(it, elem)
			if err != nil {
				return graph.Value{}, err
			}
			vs = append(vs, v.Vec())
		}
		return graph.Vec3ArrayValue(want, vs...), nil
	}
	return graph.Value{}, fmt.Errorf("arrays of %s are not supported in scene files", elem)
}

func floats(items []any) ([]float32, error) {
	out := make([]float32, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case float64:
			out = append(out, float32(x))
		case int64:
			out = append(out, float32(x))
		default:
			return nil, fmt.Errorf("expected a number, got %v", it)
		}
	}
	return out, nil
}
