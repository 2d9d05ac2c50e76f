package resolve

import (
	"slices"

	"shadekit/internal/graph"
)

// NodeSet is a set of nodes iterated in ID order.
type NodeSet struct {
	m map[*graph.Node]struct{}
}

func NewNodeSet(nodes ...*graph.Node) NodeSet {
	s := NodeSet{m: make(map[*graph.Node]struct{}, len(nodes))}
	for _, n := range nodes {
		s.m[n] = struct{}{}
	}
	return s
}

func (s *NodeSet) Add(n *graph.Node) {
	if s.m == nil {
		s.m = make(map[*graph.Node]struct{})
	}
	s.m[n] = struct{}{}
}

func (s NodeSet) Has(n *graph.Node) bool {
	_, ok := s.m[n]
	return ok
}

func (s NodeSet) Len() int { return len(s.m) }

// Nodes returns the members sorted by ID.
func (s NodeSet) Nodes() []*graph.Node {
	out := make([]*graph.Node, 0, len(s.m))
	for n := range s.m {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *graph.Node) int { return a.ID - b.ID })
	return out
}

// AddAll merges o into s.
func (s *NodeSet) AddAll(o NodeSet) {
	for n := range o.m {
		s.Add(n)
	}
}

// Intersect returns the members present in both sets.
func (s NodeSet) Intersect(o NodeSet) NodeSet {
	out := NewNodeSet()
	for n := range s.m {
		if o.Has(n) {
			out.Add(n)
		}
	}
	return out
}

func (s NodeSet) Clone() NodeSet {
	out := NewNodeSet()
	out.AddAll(s)
	return out
}
