package graph

import (
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// Kind identifies a node type from the built-in catalog.
type Kind uint8

const (
	KindOutput Kind = iota
	KindValue
	KindColor
	KindEmission
	KindDiffuseBSDF
	KindGlossyBSDF
	KindTransparentBSDF
	KindSubsurfaceScattering
	KindVolumeAbsorption
	KindMixClosure
	KindAddClosure
	KindMixClosureWeight
	KindMath
	KindVectorMath
	KindMixRGB
	KindGamma
	KindInvert
	KindGeometry
	KindTextureCoordinate
	KindAttribute
	KindMapping
	KindRGBRamp
	KindAmbientOcclusion
	KindBump
	KindDisplacement
	KindAOVOutput
	KindScript
	numKinds
)

// Special marks node roles the compilers treat structurally.
type Special uint8

const (
	SpecialNone Special = iota
	SpecialOutput
	SpecialClosure
	SpecialCombineClosure
	SpecialBump
	SpecialAOV
	SpecialScript
)

// Feature is a per-node capability report.
type Feature uint16

const (
	FeatureEmission Feature = 1 << iota
	FeatureTransparent
	FeatureRaytrace
	FeatureSpatialVarying
	FeatureAttributeDependency
	FeatureBSSRDF
	FeatureBSSRDFBump
	FeatureIntegratorDependency
	FeatureBump
)

type socketSpec struct {
	name  string
	def   Value
	flags InputFlags
}

type kindSpec struct {
	name     string
	special  Special
	features Feature
	inputs   []socketSpec
	outputs  []socketSpec
	params   []socketSpec
}

func in(name string, def Value) socketSpec { return socketSpec{name: name, def: def} }

func internal(name string, def Value) socketSpec {
	return socketSpec{name: name, def: def, flags: InputInternal}
}

func linkOnly(name string, t SocketType) socketSpec {
	return socketSpec{name: name, def: Zero(t), flags: InputLinkOnly}
}

func out(name string, t SocketType) socketSpec { return socketSpec{name: name, def: Zero(t)} }

func gray(f float32) Value { return ColorValue(f, f, f) }

var catalog = [numKinds]kindSpec{
	KindOutput: {
		name:    "output",
		special: SpecialOutput,
		inputs: []socketSpec{
			in("Surface", Zero(TypeClosure)),
			in("Volume", Zero(TypeClosure)),
			in("Displacement", Zero(TypeVector)),
			linkOnly("Normal", TypeNormal),
		},
	},
	KindValue: {
		name:    "value",
		outputs: []socketSpec{out("Value", TypeFloat)},
		params:  []socketSpec{in("value", FloatValue(0))},
	},
	KindColor: {
		name:    "color",
		outputs: []socketSpec{out("Color", TypeColor)},
		params:  []socketSpec{in("value", gray(0))},
	},
	KindEmission: {
		name:     "emission",
		special:  SpecialClosure,
		features: FeatureEmission,
		inputs: []socketSpec{
			in("Color", gray(0.8)),
			in("Strength", FloatValue(1)),
			internal("SurfaceMixWeight", FloatValue(0)),
		},
		outputs: []socketSpec{out("Emission", TypeClosure)},
	},
	KindDiffuseBSDF: {
		name:    "diffuse_bsdf",
		special: SpecialClosure,
		inputs: []socketSpec{
			in("Color", gray(0.8)),
			in("Roughness", FloatValue(0)),
			linkOnly("Normal", TypeNormal),
			internal("SurfaceMixWeight", FloatValue(0)),
		},
		outputs: []socketSpec{out("BSDF", TypeClosure)},
	},
	KindGlossyBSDF: {
		name:    "glossy_bsdf",
		special: SpecialClosure,
		inputs: []socketSpec{
			in("Color", gray(0.8)),
			in("Roughness", FloatValue(0.5)),
			linkOnly("Normal", TypeNormal),
			internal("SurfaceMixWeight", FloatValue(0)),
		},
		outputs: []socketSpec{out("BSDF", TypeClosure)},
		params:  []socketSpec{in("distribution", EnumValue("ggx"))},
	},
	KindTransparentBSDF: {
		name:     "transparent_bsdf",
		special:  SpecialClosure,
		features: FeatureTransparent,
		inputs: []socketSpec{
			in("Color", gray(1)),
			internal("SurfaceMixWeight", FloatValue(0)),
		},
		outputs: []socketSpec{out("BSDF", TypeClosure)},
	},
	KindSubsurfaceScattering: {
		name:     "subsurface_scattering",
		special:  SpecialClosure,
		features: FeatureBSSRDF,
		inputs: []socketSpec{
			in("Color", gray(0.8)),
			in("Scale", FloatValue(0.01)),
			in("Radius", VectorValue(ms3.Vec{X: 0.1, Y: 0.1, Z: 0.1})),
			linkOnly("Normal", TypeNormal),
			internal("SurfaceMixWeight", FloatValue(0)),
		},
		outputs: []socketSpec{out("BSSRDF", TypeClosure)},
		params:  []socketSpec{in("method", EnumValue("random_walk"))},
	},
	KindVolumeAbsorption: {
		name:    "volume_absorption",
		special: SpecialClosure,
		inputs: []socketSpec{
			in("Color", gray(0.8)),
			in("Density", FloatValue(1)),
			internal("VolumeMixWeight", FloatValue(0)),
		},
		outputs: []socketSpec{out("Volume", TypeClosure)},
	},
	KindMixClosure: {
		name:    "mix_closure",
		special: SpecialCombineClosure,
		inputs: []socketSpec{
			in("Fac", FloatValue(0.5)),
			in("Closure1", Zero(TypeClosure)),
			in("Closure2", Zero(TypeClosure)),
		},
		outputs: []socketSpec{out("Closure", TypeClosure)},
	},
	KindAddClosure: {
		name:    "add_closure",
		special: SpecialCombineClosure,
		inputs: []socketSpec{
			in("Closure1", Zero(TypeClosure)),
			in("Closure2", Zero(TypeClosure)),
		},
		outputs: []socketSpec{out("Closure", TypeClosure)},
	},
	KindMixClosureWeight: {
		name: "mix_closure_weight",
		inputs: []socketSpec{
			in("Weight", FloatValue(1)),
			in("Fac", FloatValue(1)),
		},
		outputs: []socketSpec{out("Weight1", TypeFloat), out("Weight2", TypeFloat)},
	},
	KindMath: {
		name: "math",
		inputs: []socketSpec{
			in("Value1", FloatValue(0.5)),
			in("Value2", FloatValue(0.5)),
		},
		outputs: []socketSpec{out("Value", TypeFloat)},
		params: []socketSpec{
			in("type", EnumValue("add")),
			in("use_clamp", BoolValue(false)),
		},
	},
	KindVectorMath: {
		name: "vector_math",
		inputs: []socketSpec{
			in("Vector1", Zero(TypeVector)),
			in("Vector2", Zero(TypeVector)),
		},
		outputs: []socketSpec{out("Value", TypeFloat), out("Vector", TypeVector)},
		params:  []socketSpec{in("type", EnumValue("add"))},
	},
	KindMixRGB: {
		name: "mix_rgb",
		inputs: []socketSpec{
			in("Fac", FloatValue(0.5)),
			in("Color1", gray(0)),
			in("Color2", gray(0)),
		},
		outputs: []socketSpec{out("Color", TypeColor)},
		params: []socketSpec{
			in("blend_type", EnumValue("mix")),
			in("use_clamp", BoolValue(false)),
		},
	},
	KindGamma: {
		name: "gamma",
		inputs: []socketSpec{
			in("Color", gray(0)),
			in("Gamma", FloatValue(1)),
		},
		outputs: []socketSpec{out("Color", TypeColor)},
	},
	KindInvert: {
		name: "invert",
		inputs: []socketSpec{
			in("Fac", FloatValue(1)),
			in("Color", gray(0)),
		},
		outputs: []socketSpec{out("Color", TypeColor)},
	},
	KindGeometry: {
		name:     "geometry",
		features: FeatureSpatialVarying,
		outputs: []socketSpec{
			out("Position", TypePoint),
			out("Normal", TypeNormal),
			out("Incoming", TypeVector),
		},
	},
	KindTextureCoordinate: {
		name:     "texture_coordinate",
		features: FeatureSpatialVarying,
		outputs: []socketSpec{
			out("Generated", TypePoint),
			out("Normal", TypeNormal),
			out("UV", TypePoint),
			out("Object", TypePoint),
		},
	},
	KindAttribute: {
		name:     "attribute",
		features: FeatureSpatialVarying | FeatureAttributeDependency,
		outputs: []socketSpec{
			out("Color", TypeColor),
			out("Vector", TypeVector),
			out("Fac", TypeFloat),
		},
		params: []socketSpec{in("attribute", StringValue(""))},
	},
	KindMapping: {
		name:    "mapping",
		inputs:  []socketSpec{in("Vector", Zero(TypePoint))},
		outputs: []socketSpec{out("Vector", TypePoint)},
		params:  []socketSpec{in("transform", TransformValue(Identity()))},
	},
	KindRGBRamp: {
		name:    "rgb_ramp",
		inputs:  []socketSpec{in("Fac", FloatValue(0))},
		outputs: []socketSpec{out("Color", TypeColor), out("Alpha", TypeFloat)},
		params: []socketSpec{
			in("ramp", Zero(TypeColorArray)),
			in("ramp_alpha", Zero(TypeFloatArray)),
			in("interpolate", BoolValue(true)),
		},
	},
	KindAmbientOcclusion: {
		name:     "ambient_occlusion",
		features: FeatureRaytrace | FeatureSpatialVarying | FeatureIntegratorDependency,
		inputs: []socketSpec{
			in("Color", gray(1)),
			in("Distance", FloatValue(1)),
			linkOnly("Normal", TypeNormal),
		},
		outputs: []socketSpec{out("Color", TypeColor), out("AO", TypeFloat)},
		params:  []socketSpec{in("samples", IntValue(16))},
	},
	KindBump: {
		name:     "bump",
		special:  SpecialBump,
		features: FeatureBump,
		inputs: []socketSpec{
			in("Strength", FloatValue(1)),
			in("Distance", FloatValue(1)),
			linkOnly("Normal", TypeNormal),
			in("Height", FloatValue(0)),
			in("SampleCenter", FloatValue(0)),
			in("SampleX", FloatValue(0)),
			in("SampleY", FloatValue(0)),
		},
		outputs: []socketSpec{out("Normal", TypeNormal)},
		params: []socketSpec{
			in("invert", BoolValue(false)),
			in("use_object_space", BoolValue(false)),
		},
	},
	KindDisplacement: {
		name: "displacement",
		inputs: []socketSpec{
			in("Height", FloatValue(0)),
			in("Midlevel", FloatValue(0.5)),
			in("Scale", FloatValue(1)),
			linkOnly("Normal", TypeNormal),
		},
		outputs: []socketSpec{out("Displacement", TypeVector)},
		params:  []socketSpec{in("space", EnumValue("object"))},
	},
	KindAOVOutput: {
		name:    "aov_output",
		special: SpecialAOV,
		inputs: []socketSpec{
			in("Color", gray(0)),
			in("Value", FloatValue(0)),
		},
		params: []socketSpec{in("name", StringValue(""))},
	},
	KindScript: {
		name:    "script",
		special: SpecialScript,
	},
}

func (k Kind) spec() *kindSpec {
	if k < numKinds {
		return &catalog[k]
	}
	return &kindSpec{name: "invalid"}
}

func (k Kind) String() string {
	if k < numKinds {
		return catalog[k].name
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind resolves a catalog name such as "diffuse_bsdf".
func ParseKind(s string) (Kind, error) {
	for k := range numKinds {
		if catalog[k].name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// NewNode instantiates a node of kind k with catalog defaults.
// The node receives its ID when added to a graph.
func NewNode(k Kind) *Node {
	spec := k.spec()
	n := &Node{ID: -1, Kind: k}
	for _, s := range spec.inputs {
		n.AddInput(s.name, s.def, s.flags)
	}
	for _, s := range spec.outputs {
		n.AddOutput(s.name, s.def.Type)
	}
	for _, s := range spec.params {
		n.Params = append(n.Params, &Param{Name: s.name, Value: s.def})
	}
	return n
}
