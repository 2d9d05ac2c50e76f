package resolve

import (
	"errors"
	"fmt"
	"slices"

	"shadekit/internal/graph"
)

var (
	ErrCycle      = errors.New("dependency cycle")
	ErrUnresolved = errors.New("dependency outside schedule")
)

// Plan is an evaluation order for a node set.
type Plan struct {
	Order []*graph.Node   // linear order
	Waves [][]*graph.Node // nodes whose inputs became ready together
}

// Schedule orders nodes so that every relevant link source precedes its
// consumers. It counts pending inputs per node and releases a node once the
// count reaches zero; each wave is sorted by ID so the result is
// deterministic. Sources outside nodes must already be in done.
func Schedule(nodes NodeSet, done NodeSet, ctx graph.Context, policy Policy) (*Plan, error) {
	members := nodes.Nodes()
	pending := make(map[*graph.Node]int, len(members))
	current := make([]*graph.Node, 0, len(members))
	for _, n := range members {
		if done.Has(n) {
			continue
		}
		count := 0
		for _, in := range n.Inputs {
			if in.Link == nil || policy(n, in, ctx) {
				continue
			}
			src := in.Link.Parent
			switch {
			case done.Has(src):
			case nodes.Has(src):
				count++
			default:
				return nil, fmt.Errorf("%s needs %s: %w", in, src, ErrUnresolved)
			}
		}
		pending[n] = count
		if count == 0 {
			current = append(current, n)
		}
	}

	plan := &Plan{Order: make([]*graph.Node, 0, len(pending))}
	for len(current) > 0 {
		wave := slices.Clone(current)
		plan.Waves = append(plan.Waves, wave)
		var next []*graph.Node
		for _, n := range wave {
			plan.Order = append(plan.Order, n)
			for _, out := range n.Outputs {
				for _, to := range out.Links {
					c, ok := pending[to.Parent]
					if !ok || policy(to.Parent, to, ctx) {
						continue
					}
					pending[to.Parent] = c - 1
					if c-1 == 0 {
						next = append(next, to.Parent)
					}
				}
			}
		}
		slices.SortFunc(next, func(a, b *graph.Node) int { return a.ID - b.ID })
		current = next
	}

	if len(plan.Order) != len(pending) {
		var stuck []string
		for _, n := range members {
			if pending[n] > 0 {
				stuck = append(stuck, n.String())
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return plan, nil
}
