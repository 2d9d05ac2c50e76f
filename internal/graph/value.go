package graph

import (
	"slices"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Value is a socket or parameter value tagged with its SocketType.
// Exactly one payload field is meaningful for a given tag.
type Value struct {
	Type SocketType

	b   bool
	f   float32
	i   int32
	s   string
	v   ms3.Vec
	p   ms2.Vec
	m   ms3.Mat4
	arr any
}

func BoolValue(b bool) Value { return Value{Type: TypeBoolean, b: b} }
func FloatValue(f float32) Value { return Value{Type: TypeFloat, f: f} }
func IntValue(i int32) Value { return Value{Type: TypeInt, i: i} }
func UIntValue(i int32) Value { return Value{Type: TypeUInt, i: i} }
func StringValue(s string) Value { return Value{Type: TypeString, s: s} }
func EnumValue(s string) Value { return Value{Type: TypeEnum, s: s} }
func VectorValue(v ms3.Vec) Value { return Value{Type: TypeVector, v: v} }
func PointValue(v ms3.Vec) Value { return Value{Type: TypePoint, v: v} }
func NormalValue(v ms3.Vec) Value { return Value{Type: TypeNormal, v: v} }
func Point2Value(p ms2.Vec) Value { return Value{Type: TypePoint2, p: p} }
func TransformValue(m ms3.Mat4) Value { return Value{Type: TypeTransform, m: m} }

func ColorValue(r, g, b float32) Value {
	return Value{Type: TypeColor, v: ms3.Vec{X: r, Y: g, Z: b}}
}

// Vec3Value builds a value of any three-component type.
func Vec3Value(t SocketType, v ms3.Vec) Value { return Value{Type: t, v: v} }

func BoolArrayValue(bs ...bool) Value {
	return Value{Type: TypeBooleanArray, arr: slices.Clone(bs)}
}

func FloatArrayValue(fs ...float32) Value {
	return Value{Type: TypeFloatArray, arr: slices.Clone(fs)}
}

func IntArrayValue(is ...int32) Value {
	return Value{Type: TypeIntArray, arr: slices.Clone(is)}
}

func StringArrayValue(ss ...string) Value {
	return Value{Type: TypeStringArray, arr: slices.Clone(ss)}
}

// Vec3ArrayValue builds a color, vector, point or normal array.
func Vec3ArrayValue(t SocketType, vs ...ms3.Vec) Value {
	return Value{Type: t, arr: slices.Clone(vs)}
}

func Point2ArrayValue(ps ...ms2.Vec) Value {
	return Value{Type: TypePoint2Array, arr: slices.Clone(ps)}
}

func TransformArrayValue(ms ...ms3.Mat4) Value {
	return Value{Type: TypeTransformArray, arr: slices.Clone(ms)}
}

// Identity returns the 4x4 identity transform.
func Identity() ms3.Mat4 {
	return ms3.NewMat4([]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// Zero returns the default value for t.
func Zero(t SocketType) Value {
	v := Value{Type: t}
	switch t {
	case TypeTransform:
		v.m = Identity()
	case TypeBooleanArray:
		v.arr = []bool(nil)
	case TypeFloatArray:
		v.arr = []float32(nil)
	case TypeIntArray:
		v.arr = []int32(nil)
	case TypeStringArray:
		v.arr = []string(nil)
	case TypeColorArray, TypeVectorArray, TypePointArray, TypeNormalArray:
		v.arr = []ms3.Vec(nil)
	case TypePoint2Array:
		v.arr = []ms2.Vec(nil)
	case TypeTransformArray:
		v.arr = []ms3.Mat4(nil)
	}
	return v
}

func (v Value) Bool() bool {
	switch v.Type {
	case TypeBoolean:
		return v.b
	case TypeInt, TypeUInt:
		return v.i != 0
	case TypeFloat:
		return v.f != 0
	}
	return false
}

func (v Value) Float() float32 {
	switch v.Type {
	case TypeFloat:
		return v.f
	case TypeInt, TypeUInt:
		return float32(v.i)
	case TypeBoolean:
		if v.b {
			return 1
		}
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		return (v.v.X + v.v.Y + v.v.Z) / 3
	}
	return 0
}

func (v Value) Int() int32 {
	switch v.Type {
	case TypeInt, TypeUInt:
		return v.i
	case TypeFloat:
		return int32(v.f)
	case TypeBoolean:
		if v.b {
			return 1
		}
	}
	return 0
}

func (v Value) Str() string { return v.s }

// Vec returns the three-component payload; scalars are splatted.
func (v Value) Vec() ms3.Vec {
	switch v.Type {
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		return v.v
	case TypeFloat, TypeInt, TypeUInt, TypeBoolean:
		f := v.Float()
		return ms3.Vec{X: f, Y: f, Z: f}
	}
	return ms3.Vec{}
}

func (v Value) Vec2() ms2.Vec { return v.p }

func (v Value) Transform() ms3.Mat4 { return v.m }

func (v Value) Bools() []bool {
	s, _ := v.arr.([]bool)
	return s
}

func (v Value) Floats() []float32 {
	s, _ := v.arr.([]float32)
	return s
}

func (v Value) Ints() []int32 {
	s, _ := v.arr.([]int32)
	return s
}

func (v Value) Strings() []string {
	s, _ := v.arr.([]string)
	return s
}

func (v Value) Vecs() []ms3.Vec {
	s, _ := v.arr.([]ms3.Vec)
	return s
}

func (v Value) Vec2s() []ms2.Vec {
	s, _ := v.arr.([]ms2.Vec)
	return s
}

func (v Value) Transforms() []ms3.Mat4 {
	s, _ := v.arr.([]ms3.Mat4)
	return s
}

// Len is the element count of an array value and 1 otherwise.
func (v Value) Len() int {
	switch a := v.arr.(type) {
	case []bool:
		return len(a)
	case []float32:
		return len(a)
	case []int32:
		return len(a)
	case []string:
		return len(a)
	case []ms3.Vec:
		return len(a)
	case []ms2.Vec:
		return len(a)
	case []ms3.Mat4:
		return len(a)
	}
	return 1
}

// Convert re-tags v as type t where a lossless or conventional conversion exists.
func (v Value) Convert(t SocketType) (Value, bool) {
	if v.Type == t {
		return v, true
	}
	switch {
	case t == TypeFloat && (isScalar(v.Type) || v.Type.IsVector3()):
		return FloatValue(v.Float()), true
	case (t == TypeInt || t == TypeUInt) && isScalar(v.Type):
		return Value{Type: t, i: v.Int()}, true
	case t == TypeBoolean && isScalar(v.Type):
		return BoolValue(v.Bool()), true
	case t.IsVector3() && (v.Type.IsVector3() || isScalar(v.Type)):
		return Vec3Value(t, v.Vec()), true
	case t == TypeEnum && v.Type == TypeString, t == TypeString && v.Type == TypeEnum:
		return Value{Type: t, s: v.s}, true
	case t.IsArray() && v.Type.IsArray() && t.Elem().IsVector3() && v.Type.Elem().IsVector3():
		return Vec3ArrayValue(t, v.Vecs()...), true
	}
	return Value{}, false
}

// Equal compares tag and payload; float payloads compare bitwise.
func (v Value) Equal(o Value) bool {
	return v.Type == o.Type && v.Key() == o.Key()
}

// Key is a canonical encoding of v, usable as a map key.
func (v Value) Key() string {
	var b strings.Builder
	b.WriteString(v.Type.String())
	b.WriteByte(':')
	appendBits := func(f float32) {
		b.WriteString(strconv.FormatUint(uint64(math32.Float32bits(f)), 16))
		b.WriteByte(',')
	}
	switch v.Type {
	case TypeBoolean:
		b.WriteString(strconv.FormatBool(v.b))
	case TypeFloat:
		appendBits(v.f)
	case TypeInt, TypeUInt:
		b.WriteString(strconv.FormatInt(int64(v.i), 10))
	case TypeString, TypeEnum:
		b.WriteString(strconv.Quote(v.s))
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		appendBits(v.v.X)
		appendBits(v.v.Y)
		appendBits(v.v.Z)
	case TypePoint2:
		appendBits(v.p.X)
		appendBits(v.p.Y)
	case TypeTransform:
		arr := v.m.Array()
		for _, f := range arr {
			appendBits(f)
		}
	default:
		if v.Type.IsArray() {
			for _, f := range Pack(v).Floats {
				appendBits(f)
			}
			for _, i := range Pack(v).Ints {
				b.WriteString(strconv.FormatInt(int64(i), 10))
				b.WriteByte(',')
			}
			for _, s := range Pack(v).Strings {
				b.WriteString(strconv.Quote(s))
				b.WriteByte(',')
			}
		}
	}
	return b.String()
}

func (v Value) String() string {
	switch v.Type {
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	case TypeFloat:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case TypeInt, TypeUInt:
		return strconv.FormatInt(int64(v.i), 10)
	case TypeString, TypeEnum:
		return strconv.Quote(v.s)
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		return "(" + formatFloats(v.v.X, v.v.Y, v.v.Z) + ")"
	case TypePoint2:
		return "(" + formatFloats(v.p.X, v.p.Y) + ")"
	case TypeClosure:
		return "closure"
	case TypeTransform:
		arr := v.m.Array()
		return "[" + formatFloats(arr[:]...) + "]"
	}
	if v.Type.IsArray() {
		return v.Type.String() + "{" + strconv.Itoa(v.Len()) + "}"
	}
	return "<" + v.Type.String() + ">"
}

func formatFloats(fs ...float32) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return strings.Join(parts, " ")
}
