package osl

import (
	"fmt"

	"github.com/soypat/geometry/ms3"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
)

// SynthesizeNode adds a script node exposing one socket per single-valued
// parameter of info. Parameters that cannot be sockets are reported and
// skipped. Exactly one of path and bytecode identifies the program.
func SynthesizeNode(g *graph.Graph, info *ShaderInfo, path, bytecode string, r diag.Reporter) *graph.Node {
	if r == nil {
		r = diag.NopReporter{}
	}
	n := graph.NewNode(graph.KindScript)
	n.Script = &graph.ScriptInfo{
		Path:           path,
		Hash:           info.Hash,
		HasEmission:    info.HasEmission,
		HasTransparent: info.HasTransparent,
		HasBSSRDF:      info.HasBSSRDF,
	}
	if path == "" {
		n.Script.Bytecode = bytecode
	}
	subject := diag.Subject{Path: path, Node: info.Query.ShaderName}

	for _, p := range info.Query.Params {
		if p.VarLenArray || p.IsStruct || p.ArrayLen > 1 {
			diag.ReportWarning(r, diag.OSLMalformedParameter, subject,
				fmt.Sprintf("parameter %s of type %s cannot be a socket", p.Name, p.Type)).Emit()
			continue
		}
		def, ok := socketDefault(p)
		if !ok {
			diag.ReportWarning(r, diag.OSLMalformedParameter, subject,
				fmt.Sprintf("parameter %s has unsupported type %s", p.Name, p.Type)).Emit()
			continue
		}
		if p.IsOutput {
			n.AddOutput(p.Name, def.Type)
		} else {
			n.AddInput(p.Name, def, 0)
		}
	}
	return g.Add(n)
}

// socketDefault maps a parameter onto a socket type and its default.
func socketDefault(p Param) (graph.Value, bool) {
	if p.IsClosure {
		return graph.Zero(graph.TypeClosure), true
	}
	vec := func(t graph.SocketType) (graph.Value, bool) {
		if !p.IsOutput && p.ValidDefault && len(p.Floats) >= 3 {
			return graph.Vec3Value(t, ms3.Vec{X: p.Floats[0], Y: p.Floats[1], Z: p.Floats[2]}), true
		}
		return graph.Zero(t), true
	}
	switch p.Type {
	case "color":
		return vec(graph.TypeColor)
	case "point":
		return vec(graph.TypePoint)
	case "vector":
		return vec(graph.TypeVector)
	case "normal":
		return vec(graph.TypeNormal)
	case "int":
		if !p.IsOutput && p.ValidDefault && len(p.Ints) > 0 {
			return graph.IntValue(p.Ints[0]), true
		}
		return graph.Zero(graph.TypeInt), true
	case "float":
		if !p.IsOutput && p.ValidDefault && len(p.Floats) > 0 {
			return graph.FloatValue(p.Floats[0]), true
		}
		return graph.Zero(graph.TypeFloat), true
	case "string":
		if !p.IsOutput && p.ValidDefault && len(p.Strings) > 0 {
			return graph.StringValue(p.Strings[0]), true
		}
		return graph.Zero(graph.TypeString), true
	}
	return graph.Value{}, false
}
