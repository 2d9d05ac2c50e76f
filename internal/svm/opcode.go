package svm

import "fmt"

// Opcode is the first word of an instruction record.
type Opcode int32

const (
	OpEnd Opcode = iota
	OpShaderJump
	OpJumpIfZero
	OpJumpIfOne
	OpValueF
	OpValueV
	OpClosureSetWeight
	OpClosureWeight
	OpEmissionWeight
	OpClosureBSDF
	OpClosureEmission
	OpClosureTransparent
	OpClosureBSSRDF
	OpClosureVolume
	OpMixClosureWeight
	OpMath
	OpVectorMath
	OpMixRGB
	OpGamma
	OpInvert
	OpGeometry
	OpTexCoord
	OpAttribute
	OpMapping
	OpRGBRamp
	OpAmbientOcclusion
	OpSetBump
	OpDisplacement
	OpSetDisplacement
	OpSetNormal
	OpEnterBumpEval
	OpLeaveBumpEval
	OpAOVColor
	OpAOVValue
	numOpcodes
)

var opNames = [numOpcodes]string{
	OpEnd:                "end",
	OpShaderJump:         "shader_jump",
	OpJumpIfZero:         "jump_if_zero",
	OpJumpIfOne:          "jump_if_one",
	OpValueF:             "value_f",
	OpValueV:             "value_v",
	OpClosureSetWeight:   "closure_set_weight",
	OpClosureWeight:      "closure_weight",
	OpEmissionWeight:     "emission_weight",
	OpClosureBSDF:        "closure_bsdf",
	OpClosureEmission:    "closure_emission",
	OpClosureTransparent: "closure_transparent",
	OpClosureBSSRDF:      "closure_bssrdf",
	OpClosureVolume:      "closure_volume",
	OpMixClosureWeight:   "mix_closure_weight",
	OpMath:               "math",
	OpVectorMath:         "vector_math",
	OpMixRGB:             "mix_rgb",
	OpGamma:              "gamma",
	OpInvert:             "invert",
	OpGeometry:           "geometry",
	OpTexCoord:           "tex_coord",
	OpAttribute:          "attribute",
	OpMapping:            "mapping",
	OpRGBRamp:            "rgb_ramp",
	OpAmbientOcclusion:   "ambient_occlusion",
	OpSetBump:            "set_bump",
	OpDisplacement:       "displacement",
	OpSetDisplacement:    "set_displacement",
	OpSetNormal:          "set_normal",
	OpEnterBumpEval:      "enter_bump_eval",
	OpLeaveBumpEval:      "leave_bump_eval",
	OpAOVColor:           "aov_color",
	OpAOVValue:           "aov_value",
}

func (op Opcode) String() string {
	if op >= 0 && op < numOpcodes {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int32(op))
}

// trailing reports how many data records follow an instruction. Records
// whose count depends on the payload report -1.
func (op Opcode) trailing() int {
	switch op {
	case OpValueV, OpClosureBSDF, OpClosureBSSRDF:
		return 1
	case OpMapping:
		return 3
	case OpRGBRamp:
		return -1
	}
	return 0
}

// Closure kinds packed into closure instructions.
const (
	ClosureDiffuse int32 = iota + 1
	ClosureGlossyGGX
	ClosureGlossyBeckmann
	ClosureGlossySharp
	ClosureTransparent
	ClosureBSSRDFRandomWalk
	ClosureBSSRDFBurley
	ClosureVolumeAbsorption
)

// Node output selectors for geometry-like instructions.
const (
	GeomPosition int32 = iota
	GeomNormal
	GeomIncoming
	GeomGenerated
	GeomUV
	GeomObject
)

var mathOps = map[string]int32{
	"add": 0, "subtract": 1, "multiply": 2, "divide": 3, "sine": 4,
	"cosine": 5, "tangent": 6, "power": 7, "logarithm": 8, "minimum": 9,
	"maximum": 10, "round": 11, "less_than": 12, "greater_than": 13,
	"modulo": 14, "absolute": 15,
}

var vectorMathOps = map[string]int32{
	"add": 0, "subtract": 1, "dot_product": 2, "cross_product": 3,
	"normalize": 4, "length": 5,
}

var blendTypes = map[string]int32{
	"mix": 0, "add": 1, "multiply": 2, "subtract": 3, "screen": 4,
	"divide": 5, "difference": 6, "darken": 7, "lighten": 8, "overlay": 9,
}

var displacementSpaces = map[string]int32{"object": 0, "world": 1}

var glossyDistributions = map[string]int32{
	"ggx":       ClosureGlossyGGX,
	"beckmann":  ClosureGlossyBeckmann,
	"sharp":     ClosureGlossySharp,
	"multi_ggx": ClosureGlossyGGX,
}

var bssrdfMethods = map[string]int32{
	"random_walk": ClosureBSSRDFRandomWalk,
	"burley":      ClosureBSSRDFBurley,
}

func lookupEnum(table map[string]int32, name string, fallback int32) int32 {
	if v, ok := table[name]; ok {
		return v
	}
	return fallback
}
