package resolve

import "shadekit/internal/graph"

// Dependencies returns every node that must be evaluated before in can be
// read in ctx. Nodes in done and the skip node are not entered. An
// unlinked input yields an empty set.
func Dependencies(in *graph.Input, ctx graph.Context, done NodeSet, skip *graph.Node, policy Policy) NodeSet {
	deps := NewNodeSet()
	Collect(&deps, in, ctx, done, skip, policy)
	return deps
}

// Collect adds the dependencies of in to deps.
func Collect(deps *NodeSet, in *graph.Input, ctx graph.Context, done NodeSet, skip *graph.Node, policy Policy) {
	if in.Link == nil {
		return
	}
	n := in.Link.Parent
	if n == skip || done.Has(n) || deps.Has(n) {
		return
	}
	for _, next := range n.Inputs {
		if policy(n, next, ctx) {
			continue
		}
		Collect(deps, next, ctx, done, skip, policy)
	}
	deps.Add(n)
}

// NodeDependencies collects the dependencies of all relevant inputs of n.
func NodeDependencies(n *graph.Node, ctx graph.Context, done NodeSet, policy Policy) NodeSet {
	deps := NewNodeSet()
	for _, in := range n.Inputs {
		if policy(n, in, ctx) {
			continue
		}
		Collect(&deps, in, ctx, done, n, policy)
	}
	return deps
}
