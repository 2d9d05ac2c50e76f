package resolve

import "shadekit/internal/graph"

// Policy reports whether an input is irrelevant when compiling ctx.
// Irrelevant inputs are neither traversed nor bound.
type Policy func(n *graph.Node, in *graph.Input, ctx graph.Context) bool

// SkipInput is the policy of the program back end: structural skips plus
// every internal-only input.
func SkipInput(n *graph.Node, in *graph.Input, ctx graph.Context) bool {
	if in.Internal() {
		return true
	}
	return skipStructural(n, in, ctx)
}

// SkipInputSVM is the policy of the bytecode back end, which consumes
// internal-only inputs itself.
func SkipInputSVM(n *graph.Node, in *graph.Input, ctx graph.Context) bool {
	return skipStructural(n, in, ctx)
}

func skipStructural(n *graph.Node, in *graph.Input, ctx graph.Context) bool {
	switch n.Special() {
	case graph.SpecialOutput:
		switch in.Name {
		case "Surface":
			return ctx != graph.ContextSurface
		case "Volume":
			return ctx != graph.ContextVolume
		case "Displacement":
			return ctx != graph.ContextDisplacement
		case "Normal":
			return ctx != graph.ContextBump
		}
	case graph.SpecialBump:
		if in.Name == "Height" {
			return true
		}
	}
	// bump nodes only make sense on the shading side; displacement
	// evaluates before shading normals exist.
	if ctx == graph.ContextDisplacement && in.Link != nil && in.Link.Parent.Special() == graph.SpecialBump {
		return true
	}
	return false
}
