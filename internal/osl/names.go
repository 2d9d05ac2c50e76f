package osl

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"shadekit/internal/graph"
)

// layerID names the layer instantiated for n. Bump copies keep their own ID
// so every copy gets a distinct layer.
func layerID(n *graph.Node) string {
	return "node_" + n.Kind.String() + "_" + strconv.Itoa(n.ID)
}

// cleanName strips whitespace and normalises to NFC so socket names typed
// in different encodings bind to the same parameter.
func cleanName(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return norm.NFC.String(s)
}

// inputName is the parameter name of an input; it gains an "In" suffix when
// an output of the node has the same name.
func inputName(n *graph.Node, in *graph.Input) string {
	name := cleanName(in.Name)
	for _, out := range n.Outputs {
		if out.Name == in.Name {
			return name + "In"
		}
	}
	return name
}

// outputName is the parameter name of an output; it gains an "Out" suffix
// when an input of the node has the same name.
func outputName(n *graph.Node, out *graph.Output) string {
	name := cleanName(out.Name)
	for _, in := range n.Inputs {
		if in.Name == out.Name {
			return name + "Out"
		}
	}
	return name
}
