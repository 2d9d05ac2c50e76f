package graph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnknownSocket = errors.New("unknown socket")
	ErrBadLink       = errors.New("incompatible link")
	ErrForeignNode   = errors.New("node belongs to another graph")
)

// Graph is a shading node graph with exactly one Output node.
// Nodes are kept in ID order; IDs are never reused.
type Graph struct {
	nodes     []*Node
	owner     map[*Node]struct{}
	output    *Node
	nextID    int
	finalized bool
}

func New() *Graph {
	g := &Graph{owner: make(map[*Node]struct{})}
	g.output = g.Add(NewNode(KindOutput))
	return g
}

// Add assigns n the next ID and inserts it.
func (g *Graph) Add(n *Node) *Node {
	n.ID = g.nextID
	g.nextID++
	g.nodes = append(g.nodes, n)
	g.owner[n] = struct{}{}
	for _, in := range n.Inputs {
		in.Parent = n
	}
	for _, out := range n.Outputs {
		out.Parent = n
	}
	return n
}

// AddKind is shorthand for Add(NewNode(k)).
func (g *Graph) AddKind(k Kind) *Node { return g.Add(NewNode(k)) }

func (g *Graph) Output() *Node { return g.output }

// Nodes returns the nodes in ID order. The slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Node(id int) *Node {
	i, ok := slices.BinarySearchFunc(g.nodes, id, func(n *Node, id int) int { return n.ID - id })
	if !ok {
		return nil
	}
	return g.nodes[i]
}

// Lookup finds a node by its user-visible name.
func (g *Graph) Lookup(name string) *Node {
	for _, n := range g.nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

func (g *Graph) Finalized() bool { return g.finalized }

// Connect links from into to, replacing any existing link on to.
func (g *Graph) Connect(from *Output, to *Input) error {
	if from == nil || to == nil {
		return fmt.Errorf("connect: %w", ErrUnknownSocket)
	}
	if _, ok := g.owner[from.Parent]; !ok {
		return fmt.Errorf("connect %s: %w", from, ErrForeignNode)
	}
	if _, ok := g.owner[to.Parent]; !ok {
		return fmt.Errorf("connect %s: %w", to, ErrForeignNode)
	}
	if !Compatible(from.Type, to.Type) {
		return fmt.Errorf("connect %s (%s) -> %s (%s): %w", from, from.Type, to, to.Type, ErrBadLink)
	}
	if to.Link != nil {
		g.Disconnect(to)
	}
	to.Link = from
	from.Links = append(from.Links, to)
	return nil
}

// MustConnect panics on error; for graphs built in code.
func (g *Graph) MustConnect(from *Output, to *Input) {
	if err := g.Connect(from, to); err != nil {
		panic(err)
	}
}

func (g *Graph) Disconnect(to *Input) {
	if to.Link == nil {
		return
	}
	from := to.Link
	from.Links = slices.DeleteFunc(from.Links, func(in *Input) bool { return in == to })
	to.Link = nil
}

// Remove detaches n from every link and drops it from the graph.
// The Output node cannot be removed.
func (g *Graph) Remove(n *Node) {
	if n == g.output {
		return
	}
	if _, ok := g.owner[n]; !ok {
		return
	}
	for _, in := range n.Inputs {
		g.Disconnect(in)
	}
	for _, out := range n.Outputs {
		for _, to := range slices.Clone(out.Links) {
			g.Disconnect(to)
		}
	}
	delete(g.owner, n)
	g.nodes = slices.DeleteFunc(g.nodes, func(m *Node) bool { return m == n })
}

// Upstream returns every node reachable backwards from in, in ID order.
// All inputs are followed.
func (g *Graph) Upstream(in *Input) []*Node {
	seen := make(map[*Node]bool)
	var walk func(*Input)
	walk = func(in *Input) {
		if in.Link == nil {
			return
		}
		n := in.Link.Parent
		if seen[n] {
			return
		}
		seen[n] = true
		for _, next := range n.Inputs {
			walk(next)
		}
	}
	walk(in)
	out := make([]*Node, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *Node) int { return a.ID - b.ID })
	return out
}

// copyNodes duplicates set, reproducing links internal to the set and links
// into it from outside. The returned map sends originals to copies.
func (g *Graph) copyNodes(set []*Node, bump BumpOffset) map[*Node]*Node {
	m := make(map[*Node]*Node, len(set))
	for _, n := range set {
		c := &Node{Kind: n.Kind, Name: n.Name, Bump: bump}
		if n.Script != nil {
			s := *n.Script
			c.Script = &s
		}
		for _, in := range n.Inputs {
			c.AddInput(in.Name, in.Value, in.Flags)
		}
		for _, out := range n.Outputs {
			c.AddOutput(out.Name, out.Type)
		}
		for _, p := range n.Params {
			c.Params = append(c.Params, &Param{Name: p.Name, Value: p.Value})
		}
		m[n] = g.Add(c)
	}
	for _, n := range set {
		c := m[n]
		for i, in := range n.Inputs {
			if in.Link == nil {
				continue
			}
			src := in.Link
			if sc, ok := m[src.Parent]; ok {
				src = sc.Output(src.Name)
			}
			g.MustConnect(src, c.Inputs[i])
		}
	}
	return m
}

// Dump renders the graph one node per line; used by tooling and tests.
func (g *Graph) Dump() string {
	var b []byte
	for _, n := range g.nodes {
		b = append(b, n.String()...)
		if n.Bump != BumpNone {
			b = append(b, " bump="...)
			b = append(b, n.Bump.String()...)
		}
		b = append(b, '\n')
		for _, in := range n.Inputs {
			b = append(b, "  "...)
			b = append(b, in.Name...)
			if in.Link != nil {
				b = append(b, " <- "...)
				b = append(b, in.Link.String()...)
			} else {
				b = append(b, " = "...)
				b = append(b, in.Value.String()...)
			}
			b = append(b, '\n')
		}
	}
	return string(b)
}
