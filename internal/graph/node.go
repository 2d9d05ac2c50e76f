package graph

import (
	"fmt"
	"strconv"
)

// InputFlags qualify how back ends treat an input.
type InputFlags uint8

const (
	// InputInternal marks inputs that only the bytecode back end consumes,
	// such as closure mix weights written by Finalize.
	InputInternal InputFlags = 1 << iota
	// InputLinkOnly marks inputs whose value is ignored unless linked,
	// e.g. a shading normal defaulting to the geometric one.
	InputLinkOnly
)

type Input struct {
	Name   string
	Type   SocketType
	Flags  InputFlags
	Value  Value
	Link   *Output
	Parent *Node
}

func (in *Input) Internal() bool { return in.Flags&InputInternal != 0 }

func (in *Input) LinkOnly() bool { return in.Flags&InputLinkOnly != 0 }

func (in *Input) String() string { return in.Parent.String() + "." + in.Name }

type Output struct {
	Name   string
	Type   SocketType
	Links  []*Input
	Parent *Node
}

func (out *Output) String() string { return out.Parent.String() + "." + out.Name }

// Param is a node setting that is not a socket.
type Param struct {
	Name  string
	Value Value
}

// BumpOffset tags node copies that evaluate at a displaced shading point.
type BumpOffset uint8

const (
	BumpNone BumpOffset = iota
	BumpCenter
	BumpDX
	BumpDY
)

func (b BumpOffset) String() string {
	switch b {
	case BumpCenter:
		return "center"
	case BumpDX:
		return "dx"
	case BumpDY:
		return "dy"
	}
	return "none"
}

// ScriptInfo is attached to script nodes backed by an external program.
type ScriptInfo struct {
	// Path of the .osl or .oso file; empty for inline bytecode.
	Path string
	// Bytecode of an inline program.
	Bytecode string
	// Hash identifies the loaded program.
	Hash string

	HasEmission    bool
	HasTransparent bool
	HasBSSRDF      bool
}

type Node struct {
	ID      int
	Kind    Kind
	Name    string
	Inputs  []*Input
	Outputs []*Output
	Params  []*Param
	Bump    BumpOffset
	Script  *ScriptInfo
}

func (n *Node) String() string {
	s := n.Kind.String() + "#" + strconv.Itoa(n.ID)
	if n.Name != "" {
		s += "(" + n.Name + ")"
	}
	return s
}

func (n *Node) Special() Special { return n.Kind.spec().special }

func (n *Node) Input(name string) *Input {
	for _, in := range n.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

func (n *Node) Output(name string) *Output {
	for _, out := range n.Outputs {
		if out.Name == name {
			return out
		}
	}
	return nil
}

func (n *Node) Param(name string) (Value, bool) {
	for _, p := range n.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return Value{}, false
}

// ParamOr returns the named parameter or def when absent.
func (n *Node) ParamOr(name string, def Value) Value {
	if v, ok := n.Param(name); ok {
		return v
	}
	return def
}

// SetParam assigns a declared parameter, converting v to its type.
func (n *Node) SetParam(name string, v Value) error {
	for _, p := range n.Params {
		if p.Name != name {
			continue
		}
		cv, ok := v.Convert(p.Value.Type)
		if !ok {
			return fmt.Errorf("%s: param %s: cannot use %s as %s", n, name, v.Type, p.Value.Type)
		}
		p.Value = cv
		return nil
	}
	return fmt.Errorf("%s: %w: param %q", n, ErrUnknownSocket, name)
}

// SetInput assigns the constant value of an unlinked input.
func (n *Node) SetInput(name string, v Value) error {
	in := n.Input(name)
	if in == nil {
		return fmt.Errorf("%s: %w: input %q", n, ErrUnknownSocket, name)
	}
	cv, ok := v.Convert(in.Type)
	if !ok {
		return fmt.Errorf("%s: input %s: cannot use %s as %s", n, name, v.Type, in.Type)
	}
	in.Value = cv
	return nil
}

// AddInput appends a socket; used by script nodes whose sockets come from
// program introspection.
func (n *Node) AddInput(name string, def Value, flags InputFlags) *Input {
	in := &Input{Name: name, Type: def.Type, Flags: flags, Value: def, Parent: n}
	n.Inputs = append(n.Inputs, in)
	return in
}

func (n *Node) AddOutput(name string, t SocketType) *Output {
	out := &Output{Name: name, Type: t, Parent: n}
	n.Outputs = append(n.Outputs, out)
	return out
}

// Features reports what the node contributes to shader capability flags.
func (n *Node) Features() Feature {
	f := n.Kind.spec().features
	switch n.Kind {
	case KindSubsurfaceScattering:
		if in := n.Input("Normal"); in != nil && in.Link != nil {
			f |= FeatureBSSRDFBump
		}
	case KindScript:
		if n.Script != nil {
			// bump use inside a program cannot be detected
			f |= FeatureBump
			if n.Script.HasEmission {
				f |= FeatureEmission
			}
			if n.Script.HasTransparent {
				f |= FeatureTransparent
			}
			if n.Script.HasBSSRDF {
				f |= FeatureBSSRDF
			}
		}
	}
	return f
}

// LinkedInputs counts inputs with an incoming link.
func (n *Node) LinkedInputs() int {
	c := 0
	for _, in := range n.Inputs {
		if in.Link != nil {
			c++
		}
	}
	return c
}
