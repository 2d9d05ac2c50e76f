package osl

import (
	"errors"
	"slices"
	"testing"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
)

const glowBytecode = `OpenShadingLanguage 1.00
# Compiled by oslc 1.12.0
surface glow
param	float	Scale	2.5		%read{0,0} %write{2147483647,-1}
param	color	Tint	0.8 0.2 0.1		%read{1,1} %write{2147483647,-1}
param	string	Label	"hot spot"		%read{2147483647,-1} %write{2147483647,-1}
param	float[4]	Weights	1 2 3 4		%read{2147483647,-1}
param	int[]	Flags	%read{2147483647,-1}
oparam	closure color	BSDF			%read{2147483647,-1} %write{1,1}
oparam	float	Fac	0		%read{2147483647,-1} %write{0,0}
global	normal	N	%read{1,1}
const	string	$const1	"emission"		%read{1,1}
code ___main___
	mul Fac Scale Scale
	closure BSDF $const1 Tint
	end
`

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(glowBytecode)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.ShaderType != "surface" || q.ShaderName != "glow" {
		t.Fatalf("shader = %s %s", q.ShaderType, q.ShaderName)
	}
	if len(q.Params) != 7 || len(q.Skipped) != 0 {
		t.Fatalf("params = %d skipped = %v", len(q.Params), q.Skipped)
	}

	tests := []struct {
		name  string
		check func(Param) bool
	}{
		{"Scale", func(p Param) bool { return p.Type == "float" && slices.Equal(p.Floats, []float32{2.5}) }},
		{"Tint", func(p Param) bool { return p.Type == "color" && len(p.Floats) == 3 && p.ValidDefault }},
		{"Label", func(p Param) bool { return slices.Equal(p.Strings, []string{"hot spot"}) }},
		{"Weights", func(p Param) bool { return p.ArrayLen == 4 && len(p.Floats) == 4 }},
		{"Flags", func(p Param) bool { return p.VarLenArray && p.ArrayLen == -1 && !p.ValidDefault }},
		{"BSDF", func(p Param) bool { return p.IsOutput && p.IsClosure && p.Type == "closure color" }},
		{"Fac", func(p Param) bool { return p.IsOutput && !p.IsClosure }},
	}
	for _, tt := range tests {
		p, ok := q.Param(tt.name)
		if !ok {
			t.Fatalf("param %s missing", tt.name)
		}
		if !tt.check(p) {
			t.Fatalf("param %s = %+v", tt.name, p)
		}
	}
}

func TestParseQueryRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"not bytecode at all\n",
		"OpenShadingLanguage 1.00\nparam float x 1\ncode ___main___\n",
	}
	for _, src := range tests {
		if _, err := ParseQuery(src); !errors.Is(err, ErrMalformedBytecode) {
			t.Fatalf("ParseQuery(%q) err = %v, want ErrMalformedBytecode", src, err)
		}
	}
}

func TestParseQueryKeepsBadLines(t *testing.T) {
	src := "OpenShadingLanguage 1.00\nshader odd\nparam int Count many\nparam float ok 1\n"
	q, err := ParseQuery(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(q.Params) != 1 || len(q.Skipped) != 1 {
		t.Fatalf("params = %+v skipped = %v", q.Params, q.Skipped)
	}
}

func TestSynthesizeNode(t *testing.T) {
	l := NewLoader()
	info := l.LoadBytecode("", glowBytecode)
	if !info.HasEmission || info.HasBSSRDF {
		t.Fatalf("flags = %+v", info)
	}

	bag := diag.NewBag(16)
	g := graph.New()
	n := SynthesizeNode(g, info, "", glowBytecode, diag.BagReporter{Bag: bag})

	if n.Kind != graph.KindScript || n.Script.Hash != info.Hash || n.Script.Bytecode == "" {
		t.Fatalf("node = %+v", n)
	}
	var ins, outs []string
	for _, in := range n.Inputs {
		ins = append(ins, in.Name)
	}
	for _, out := range n.Outputs {
		outs = append(outs, out.Name)
	}
	if !slices.Equal(ins, []string{"Scale", "Tint", "Label"}) || !slices.Equal(outs, []string{"BSDF", "Fac"}) {
		t.Fatalf("inputs = %v outputs = %v", ins, outs)
	}
	if got := n.Input("Scale").Value.Float(); got != 2.5 {
		t.Fatalf("Scale default = %v", got)
	}
	if n.Input("Tint").Type != graph.TypeColor || n.Output("BSDF").Type != graph.TypeClosure {
		t.Fatalf("socket types wrong")
	}
	if bag.Len() != 2 {
		t.Fatalf("warnings = %d, want 2 (array and varlen)", bag.Len())
	}
	if n.Features()&graph.FeatureEmission == 0 {
		t.Fatalf("script node should carry its emission flag")
	}
}

func TestCompatibleNames(t *testing.T) {
	g := graph.New()
	n := graph.NewNode(graph.KindScript)
	n.AddInput("Color", graph.ColorValue(0, 0, 0), 0)
	n.AddInput("Fac tor", graph.FloatValue(0), 0)
	n.AddOutput("Color", graph.TypeColor)
	g.Add(n)

	if got := inputName(n, n.Input("Color")); got != "ColorIn" {
		t.Fatalf("input name = %q", got)
	}
	if got := outputName(n, n.Output("Color")); got != "ColorOut" {
		t.Fatalf("output name = %q", got)
	}
	if got := inputName(n, n.Input("Fac tor")); got != "Factor" {
		t.Fatalf("spaced input name = %q", got)
	}
	if got := cleanName("Cafe\u0301"); got != "Caf\u00e9" {
		t.Fatalf("cleanName did not normalise: %q", got)
	}
}
