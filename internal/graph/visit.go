package graph

import "github.com/chewxy/math32"

// StackWidth is the number of SVM stack slots a value of type t occupies.
// Types that never live on the stack report 0.
func StackWidth(t SocketType) int {
	switch t {
	case TypeFloat, TypeInt, TypeUInt, TypeBoolean:
		return 1
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		return 3
	case TypePoint2:
		return 2
	}
	return 0
}

// BaseType is the scalar base of a parameter type descriptor.
type BaseType uint8

const (
	BaseUnknown BaseType = iota
	BaseInt
	BaseFloat
	BaseString
)

// Aggregate counts the base elements of one parameter element.
type Aggregate uint8

const (
	AggScalar   Aggregate = 1
	AggVec2     Aggregate = 2
	AggVec3     Aggregate = 3
	AggMatrix44 Aggregate = 16
)

// VecSemantics qualifies three-component aggregates.
type VecSemantics uint8

const (
	SemNone VecSemantics = iota
	SemColor
	SemPoint
	SemVector
	SemNormal
)

// ParamDesc describes how a value is bound as a named program parameter.
type ParamDesc struct {
	Base      BaseType
	Aggregate Aggregate
	Semantics VecSemantics
	// ArrayLen is 0 for non-arrays.
	ArrayLen int
}

// DescribeParam maps v onto a parameter descriptor. Booleans bind as ints,
// enums as strings and transforms as 4x4 matrices.
func DescribeParam(v Value) (ParamDesc, bool) {
	d, ok := describeElem(v.Type.Elem())
	if !ok {
		return ParamDesc{}, false
	}
	if v.Type.IsArray() {
		d.ArrayLen = v.Len()
	}
	return d, true
}

func describeElem(t SocketType) (ParamDesc, bool) {
	switch t {
	case TypeBoolean, TypeInt, TypeUInt:
		return ParamDesc{Base: BaseInt, Aggregate: AggScalar}, true
	case TypeFloat:
		return ParamDesc{Base: BaseFloat, Aggregate: AggScalar}, true
	case TypeColor:
		return ParamDesc{Base: BaseFloat, Aggregate: AggVec3, Semantics: SemColor}, true
	case TypeVector:
		return ParamDesc{Base: BaseFloat, Aggregate: AggVec3, Semantics: SemVector}, true
	case TypePoint:
		return ParamDesc{Base: BaseFloat, Aggregate: AggVec3, Semantics: SemPoint}, true
	case TypeNormal:
		return ParamDesc{Base: BaseFloat, Aggregate: AggVec3, Semantics: SemNormal}, true
	case TypePoint2:
		return ParamDesc{Base: BaseFloat, Aggregate: AggVec2}, true
	case TypeString, TypeEnum:
		return ParamDesc{Base: BaseString, Aggregate: AggScalar}, true
	case TypeTransform:
		return ParamDesc{Base: BaseFloat, Aggregate: AggMatrix44}, true
	}
	return ParamDesc{}, false
}

func (d ParamDesc) String() string {
	var s string
	switch d.Base {
	case BaseInt:
		s = "int"
	case BaseString:
		s = "string"
	case BaseFloat:
		switch d.Aggregate {
		case AggVec2:
			s = "float[2]"
		case AggMatrix44:
			s = "matrix"
		case AggVec3:
			switch d.Semantics {
			case SemColor:
				s = "color"
			case SemPoint:
				s = "point"
			case SemNormal:
				s = "normal"
			default:
				s = "vector"
			}
		default:
			s = "float"
		}
	default:
		return "unknown"
	}
	if d.ArrayLen > 0 {
		s += "[]"
	}
	return s
}

// Packed is a tightly packed parameter payload. Only one slice is populated.
type Packed struct {
	Floats  []float32
	Ints    []int32
	Strings []string
}

// Pack flattens v. Three-component arrays carry three floats per element with
// no padding. Transforms keep the row-major order of Mat4.Array.
func Pack(v Value) Packed {
	switch v.Type {
	case TypeBoolean, TypeInt, TypeUInt:
		return Packed{Ints: []int32{v.Int()}}
	case TypeFloat:
		return Packed{Floats: []float32{v.f}}
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		return Packed{Floats: []float32{v.v.X, v.v.Y, v.v.Z}}
	case TypePoint2:
		return Packed{Floats: []float32{v.p.X, v.p.Y}}
	case TypeString, TypeEnum:
		return Packed{Strings: []string{v.s}}
	case TypeTransform:
		arr := v.m.Array()
		return Packed{Floats: arr[:]}
	case TypeBooleanArray:
		out := make([]int32, 0, v.Len())
		for _, b := range v.Bools() {
			if b {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
		return Packed{Ints: out}
	case TypeIntArray:
		return Packed{Ints: append([]int32(nil), v.Ints()...)}
	case TypeFloatArray:
		return Packed{Floats: append([]float32(nil), v.Floats()...)}
	case TypeStringArray:
		return Packed{Strings: append([]string(nil), v.Strings()...)}
	case TypeColorArray, TypeVectorArray, TypePointArray, TypeNormalArray:
		out := make([]float32, 0, 3*v.Len())
		for _, e := range v.Vecs() {
			out = append(out, e.X, e.Y, e.Z)
		}
		return Packed{Floats: out}
	case TypePoint2Array:
		out := make([]float32, 0, 2*v.Len())
		for _, e := range v.Vec2s() {
			out = append(out, e.X, e.Y)
		}
		return Packed{Floats: out}
	case TypeTransformArray:
		out := make([]float32, 0, 16*v.Len())
		for _, m := range v.Transforms() {
			arr := m.Array()
			out = append(out, arr[:]...)
		}
		return Packed{Floats: out}
	}
	return Packed{}
}

// FloatBits is the bit pattern used to carry a float in an integer word.
func FloatBits(f float32) int32 { return int32(math32.Float32bits(f)) }

// FromFloatBits inverts FloatBits.
func FromFloatBits(w int32) float32 { return math32.Float32frombits(uint32(w)) }
