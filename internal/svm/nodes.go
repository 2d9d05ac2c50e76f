package svm

import (
	"fmt"

	"shadekit/internal/diag"
	"shadekit/internal/graph"
)

// compileNode emits the instructions of one node. Every emitter assigns
// its inputs, calls release, then assigns its outputs, so an output can
// reuse the slot of an input that dies at this node.
func (g *generator) compileNode(n *graph.Node) {
	switch n.Kind {
	case graph.KindValue:
		v := n.ParamOr("value", graph.FloatValue(0))
		out := g.stackAssignOutput(n.Output("Value"))
		g.addWords(OpValueF, floatWord(v.Float()), word(out), 0)
	case graph.KindColor:
		v := n.ParamOr("value", graph.ColorValue(0, 0, 0))
		out := g.stackAssignOutput(n.Output("Color"))
		g.add(OpValueV, out, 0, 0)
		g.addRecord(vecRecord(v))
	case graph.KindEmission:
		g.emission(n)
	case graph.KindDiffuseBSDF:
		g.bsdf(n, ClosureDiffuse)
	case graph.KindGlossyBSDF:
		dist := n.ParamOr("distribution", graph.EnumValue("ggx")).Str()
		g.bsdf(n, lookupEnum(glossyDistributions, dist, ClosureGlossyGGX))
	case graph.KindTransparentBSDF:
		g.closureWeight(n.Input("Color"))
		g.add(OpClosureTransparent, g.mixWeight, 0, 0)
	case graph.KindSubsurfaceScattering:
		g.subsurface(n)
	case graph.KindVolumeAbsorption:
		g.closureWeight(n.Input("Color"))
		density, dv := g.inline(n.Input("Density"))
		g.addWords(OpClosureVolume,
			EncodeUChar4(int(ClosureVolumeAbsorption), density, StackInvalid, g.mixWeight), dv, 0)
	case graph.KindMixClosureWeight:
		fac := g.stackAssign(n.Input("Fac"))
		weight := g.stackAssign(n.Input("Weight"))
		g.release(n)
		w1 := g.stackAssignOutput(n.Output("Weight1"))
		w2 := g.stackAssignOutput(n.Output("Weight2"))
		g.addWords(OpMixClosureWeight, EncodeUChar4(fac, weight, w1, w2), 0, 0)
	case graph.KindMath:
		g.math(n)
	case graph.KindVectorMath:
		g.vectorMath(n)
	case graph.KindMixRGB:
		fac := g.stackAssign(n.Input("Fac"))
		c1 := g.stackAssign(n.Input("Color1"))
		c2 := g.stackAssign(n.Input("Color2"))
		g.release(n)
		out := g.stackAssignOutput(n.Output("Color"))
		blend := lookupEnum(blendTypes, n.ParamOr("blend_type", graph.EnumValue("mix")).Str(), 0)
		clamp := boolWord(n.ParamOr("use_clamp", graph.BoolValue(false)).Bool())
		g.addWords(OpMixRGB, blend, EncodeUChar4(fac, c1, c2, clamp), word(out))
	case graph.KindGamma:
		g.gamma(n)
	case graph.KindInvert:
		fac, fv := g.inline(n.Input("Fac"))
		color := g.stackAssign(n.Input("Color"))
		g.release(n)
		out := g.stackAssignOutput(n.Output("Color"))
		g.addWords(OpInvert, EncodeUChar4(fac, color, out, 0), fv, 0)
	case graph.KindGeometry:
		g.selectOutputs(n, OpGeometry, map[string]int32{
			"Position": GeomPosition,
			"Normal":   GeomNormal,
			"Incoming": GeomIncoming,
		})
	case graph.KindTextureCoordinate:
		g.selectOutputs(n, OpTexCoord, map[string]int32{
			"Generated": GeomGenerated,
			"Normal":    GeomNormal,
			"UV":        GeomUV,
			"Object":    GeomObject,
		})
	case graph.KindAttribute:
		g.attribute(n)
	case graph.KindMapping:
		g.mapping(n)
	case graph.KindRGBRamp:
		g.rgbRamp(n)
	case graph.KindAmbientOcclusion:
		g.ambientOcclusion(n)
	case graph.KindBump:
		g.bump(n)
	case graph.KindDisplacement:
		height := g.stackAssign(n.Input("Height"))
		mid := g.stackAssign(n.Input("Midlevel"))
		scale := g.stackAssign(n.Input("Scale"))
		normal := g.stackAssignIfLinked(n.Input("Normal"))
		g.release(n)
		out := g.stackAssignOutput(n.Output("Displacement"))
		space := lookupEnum(displacementSpaces, n.ParamOr("space", graph.EnumValue("object")).Str(), 0)
		g.addWords(OpDisplacement, EncodeUChar4(height, mid, scale, normal), word(out), space)
	case graph.KindAOVOutput:
		g.aov(n)
	case graph.KindScript:
		g.unsupported(n)
	}
}

// closureWeight sets the closure weight from a color input: a stack load
// when linked, an inline constant otherwise.
func (g *generator) closureWeight(color *graph.Input) {
	if g.linked(color) {
		g.add(OpClosureWeight, g.stackAssign(color), 0, 0)
		return
	}
	g.setWeight(color.Value.Vec().X, color.Value.Vec().Y, color.Value.Vec().Z)
}

func (g *generator) setWeight(r, gr, b float32) {
	g.addWords(OpClosureSetWeight, floatWord(r), floatWord(gr), floatWord(b))
}

func (g *generator) emission(n *graph.Node) {
	color, strength := n.Input("Color"), n.Input("Strength")
	if g.linked(color) || g.linked(strength) {
		g.add(OpEmissionWeight, g.stackAssign(color), g.stackAssign(strength), 0)
	} else {
		c, s := color.Value.Vec(), strength.Value.Float()
		g.setWeight(c.X*s, c.Y*s, c.Z*s)
	}
	g.add(OpClosureEmission, g.mixWeight, 0, 0)
}

func (g *generator) bsdf(n *graph.Node, closure int32) {
	g.closureWeight(n.Input("Color"))
	normal := g.stackAssignIfLinked(n.Input("Normal"))
	rough, rv := g.inline(n.Input("Roughness"))
	g.addWords(OpClosureBSDF, EncodeUChar4(int(closure), rough, StackInvalid, g.mixWeight), rv, 0)
	g.addRecord(Instr{word(normal), StackInvalid, 0, 0})
}

func (g *generator) subsurface(n *graph.Node) {
	g.closureWeight(n.Input("Color"))
	normal := g.stackAssignIfLinked(n.Input("Normal"))
	scale, sv := g.inline(n.Input("Scale"))
	radius := g.stackAssign(n.Input("Radius"))
	method := lookupEnum(bssrdfMethods, n.ParamOr("method", graph.EnumValue("random_walk")).Str(), ClosureBSSRDFRandomWalk)
	g.addWords(OpClosureBSSRDF, EncodeUChar4(int(method), scale, radius, g.mixWeight), sv, 0)
	g.addRecord(Instr{word(normal), 0, 0, 0})
}

func (g *generator) math(n *graph.Node) {
	v1 := g.stackAssign(n.Input("Value1"))
	v2 := g.stackAssign(n.Input("Value2"))
	g.release(n)
	out := g.stackAssignOutput(n.Output("Value"))
	op := lookupEnum(mathOps, n.ParamOr("type", graph.EnumValue("add")).Str(), 0)
	clamp := boolWord(n.ParamOr("use_clamp", graph.BoolValue(false)).Bool())
	g.addWords(OpMath, op, EncodeUChar4(v1, v2, out, clamp), 0)
}

func (g *generator) vectorMath(n *graph.Node) {
	v1 := g.stackAssign(n.Input("Vector1"))
	v2 := g.stackAssign(n.Input("Vector2"))
	g.release(n)
	value := g.stackAssignOutputIfLinked(n.Output("Value"))
	vector := g.stackAssignOutputIfLinked(n.Output("Vector"))
	op := lookupEnum(vectorMathOps, n.ParamOr("type", graph.EnumValue("add")).Str(), 0)
	g.addWords(OpVectorMath, op, EncodeUChar4(v1, v2, value, vector), 0)
}

// gamma passes its color through without an instruction when the exponent
// is a constant 1.
func (g *generator) gamma(n *graph.Node) {
	gin, cin, out := n.Input("Gamma"), n.Input("Color"), n.Output("Color")
	if !g.linked(gin) && gin.Value.Float() == 1 && g.stackLink(cin, out) {
		g.release(n)
		return
	}
	gamma, gv := g.inline(gin)
	color := g.stackAssign(cin)
	g.release(n)
	off := g.stackAssignOutput(out)
	g.addWords(OpGamma, EncodeUChar4(gamma, color, off, 0), gv, 0)
}

// selectOutputs emits one selector instruction per linked output.
func (g *generator) selectOutputs(n *graph.Node, op Opcode, selectors map[string]int32) {
	for _, out := range n.Outputs {
		sel, ok := selectors[out.Name]
		if !ok || len(out.Links) == 0 {
			continue
		}
		off := g.stackAssignOutput(out)
		g.addWords(op, sel, word(off), int32(n.Bump))
	}
}

func (g *generator) attribute(n *graph.Node) {
	id := g.attributeID(n.ParamOr("attribute", graph.StringValue("")).Str())
	for i, out := range n.Outputs {
		if len(out.Links) == 0 {
			continue
		}
		off := g.stackAssignOutput(out)
		g.addWords(OpAttribute, word(id), EncodeUChar4(i, off, int(n.Bump), 0), 0)
	}
}

// mapping stores the top three rows of the transform after the instruction.
func (g *generator) mapping(n *graph.Node) {
	vec := g.stackAssign(n.Input("Vector"))
	g.release(n)
	out := g.stackAssignOutput(n.Output("Vector"))
	g.add(OpMapping, vec, out, 0)
	m := n.ParamOr("transform", graph.TransformValue(graph.Identity())).Transform().Array()
	for r := range 3 {
		g.addRecord(Instr{floatWord(m[r]), floatWord(m[4+r]), floatWord(m[8+r]), floatWord(m[12+r])})
	}
}

func (g *generator) rgbRamp(n *graph.Node) {
	fac := g.stackAssign(n.Input("Fac"))
	g.release(n)
	color := g.stackAssignOutputIfLinked(n.Output("Color"))
	alpha := g.stackAssignOutputIfLinked(n.Output("Alpha"))
	ramp := n.ParamOr("ramp", graph.Zero(graph.TypeColorArray)).Vecs()
	alphas := n.ParamOr("ramp_alpha", graph.Zero(graph.TypeFloatArray)).Floats()
	interp := boolWord(n.ParamOr("interpolate", graph.BoolValue(true)).Bool())
	g.addWords(OpRGBRamp, EncodeUChar4(fac, color, alpha, interp), word(len(ramp)), 0)
	for i, c := range ramp {
		a := float32(1)
		if i < len(alphas) {
			a = alphas[i]
		}
		g.addRecord(Instr{floatWord(c.X), floatWord(c.Y), floatWord(c.Z), floatWord(a)})
	}
}

func (g *generator) ambientOcclusion(n *graph.Node) {
	color := g.stackAssign(n.Input("Color"))
	dist, dv := g.inline(n.Input("Distance"))
	normal := g.stackAssignIfLinked(n.Input("Normal"))
	g.release(n)
	colorOut := g.stackAssignOutputIfLinked(n.Output("Color"))
	aoOut := g.stackAssignOutputIfLinked(n.Output("AO"))
	samples := min(max(n.ParamOr("samples", graph.IntValue(16)).Int(), 1), 255)
	g.addWords(OpAmbientOcclusion,
		EncodeUChar4(color, dist, normal, int(samples)), EncodeUChar4(colorOut, aoOut, 0, 0), dv)
}

func (g *generator) bump(n *graph.Node) {
	normal := g.stackAssignIfLinked(n.Input("Normal"))
	dist := g.stackAssign(n.Input("Distance"))
	center := g.stackAssign(n.Input("SampleCenter"))
	dx := g.stackAssign(n.Input("SampleX"))
	dy := g.stackAssign(n.Input("SampleY"))
	strength := g.stackAssign(n.Input("Strength"))
	g.release(n)
	out := g.stackAssignOutput(n.Output("Normal"))
	invert := boolWord(n.ParamOr("invert", graph.BoolValue(false)).Bool())
	objSpace := boolWord(n.ParamOr("use_object_space", graph.BoolValue(false)).Bool())
	g.addWords(OpSetBump,
		EncodeUChar4(normal, dist, invert, objSpace),
		EncodeUChar4(center, dx, dy, strength),
		word(out))
}

// aov writes auxiliary outputs; they only exist for surface shading.
func (g *generator) aov(n *graph.Node) {
	if g.cctx != graph.ContextSurface {
		return
	}
	id := g.aovID(n.ParamOr("name", graph.StringValue("")).Str())
	if in := n.Input("Color"); g.linked(in) {
		g.add(OpAOVColor, g.stackAssign(in), id, 0)
	}
	if in := n.Input("Value"); g.linked(in) {
		g.add(OpAOVValue, g.stackAssign(in), id, 0)
	}
}

// unsupported reserves output slots so consumers still bind, and warns once
// per node per compilation.
func (g *generator) unsupported(n *graph.Node) {
	if !g.warned.Has(n) {
		g.warned.Add(n)
		diag.ReportWarning(g.compiler.reporter, diag.SVMUnsupportedNode, g.subject(n),
			fmt.Sprintf("%s nodes only run on the program back end", n.Kind)).Emit()
	}
	g.release(n)
	for _, out := range n.Outputs {
		g.stackAssignOutputIfLinked(out)
	}
}
