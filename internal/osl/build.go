package osl

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"shadekit/internal/graph"
)

var (
	ErrNoGroup        = errors.New("osl: no group open")
	ErrGroupOpen      = errors.New("osl: group already open")
	ErrDuplicateLayer = errors.New("osl: duplicate layer")
	ErrUnknownLayer   = errors.New("osl: unknown layer")
	ErrUnboundable    = errors.New("osl: value cannot be bound as a parameter")
)

// Binding is one parameter value bound to a layer.
type Binding struct {
	Name   string          `msgpack:"name"`
	Desc   graph.ParamDesc `msgpack:"desc"`
	Packed graph.Packed    `msgpack:"packed"`
}

// Layer is one shader instance inside a group.
type Layer struct {
	ID     string    `msgpack:"id"`
	Shader string    `msgpack:"shader"`
	Usage  string    `msgpack:"usage"`
	Params []Binding `msgpack:"params,omitempty"`
}

type Connection struct {
	FromLayer string `msgpack:"from_layer"`
	FromParam string `msgpack:"from_param"`
	ToLayer   string `msgpack:"to_layer"`
	ToParam   string `msgpack:"to_param"`
}

// Group is a sealed program: layers in evaluation order and the
// connections between them. Groups are never modified after EndGroup.
type Group struct {
	Name        string       `msgpack:"name"`
	Layers      []Layer      `msgpack:"layers"`
	Connections []Connection `msgpack:"connections,omitempty"`
}

// Digest hashes the structure of g; equal programs have equal digests.
func (g *Group) Digest() string {
	if g == nil {
		return ""
	}
	data, err := msgpack.Marshal(g)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (g *Group) Layer(id string) (*Layer, bool) {
	for i := range g.Layers {
		if g.Layers[i].ID == id {
			return &g.Layers[i], true
		}
	}
	return nil, false
}

// Build assembles one group. Parameters bind to the next Shader call.
type Build struct {
	group   *Group
	pending []Binding
	layers  map[string]bool
}

func NewBuild() *Build { return &Build{} }

func (b *Build) BeginGroup(name string) error {
	if b.group != nil {
		return fmt.Errorf("%w: %s", ErrGroupOpen, b.group.Name)
	}
	b.group = &Group{Name: name}
	b.pending = nil
	b.layers = make(map[string]bool)
	return nil
}

// Parameter binds v to the next layer.
func (b *Build) Parameter(name string, v graph.Value) error {
	if b.group == nil {
		return ErrNoGroup
	}
	desc, ok := graph.DescribeParam(v)
	if !ok {
		return fmt.Errorf("%w: %s of type %s", ErrUnboundable, name, v.Type)
	}
	b.pending = append(b.pending, Binding{Name: name, Desc: desc, Packed: graph.Pack(v)})
	return nil
}

// Shader instantiates program shader as layer id, consuming pending
// parameters.
func (b *Build) Shader(usage, shader, id string) error {
	if b.group == nil {
		return ErrNoGroup
	}
	if b.layers[id] {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, id)
	}
	b.layers[id] = true
	b.group.Layers = append(b.group.Layers, Layer{ID: id, Shader: shader, Usage: usage, Params: b.pending})
	b.pending = nil
	return nil
}

// Connect wires an output parameter of an earlier layer into a later one.
func (b *Build) Connect(fromLayer, fromParam, toLayer, toParam string) error {
	if b.group == nil {
		return ErrNoGroup
	}
	if !b.layers[fromLayer] {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, fromLayer)
	}
	if !b.layers[toLayer] {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, toLayer)
	}
	b.group.Connections = append(b.group.Connections, Connection{
		FromLayer: fromLayer, FromParam: fromParam, ToLayer: toLayer, ToParam: toParam,
	})
	return nil
}

// EndGroup seals and returns the group. Parameters without a following
// Shader call are dropped.
func (b *Build) EndGroup() (*Group, error) {
	if b.group == nil {
		return nil, ErrNoGroup
	}
	g := b.group
	b.group, b.pending, b.layers = nil, nil, nil
	return g, nil
}
