package graph

import "fmt"

// SocketType is the data type carried by a socket or a node parameter.
type SocketType uint8

const (
	TypeUndefined SocketType = iota
	TypeBoolean
	TypeFloat
	TypeInt
	TypeUInt
	TypeColor
	TypeVector
	TypePoint
	TypeNormal
	TypePoint2
	TypeClosure
	TypeString
	TypeEnum
	TypeTransform

	TypeBooleanArray
	TypeFloatArray
	TypeIntArray
	TypeColorArray
	TypeVectorArray
	TypePointArray
	TypeNormalArray
	TypePoint2Array
	TypeStringArray
	TypeTransformArray
)

var socketTypeNames = [...]string{
	TypeUndefined:      "undefined",
	TypeBoolean:        "boolean",
	TypeFloat:          "float",
	TypeInt:            "int",
	TypeUInt:           "uint",
	TypeColor:          "color",
	TypeVector:         "vector",
	TypePoint:          "point",
	TypeNormal:         "normal",
	TypePoint2:         "point2",
	TypeClosure:        "closure",
	TypeString:         "string",
	TypeEnum:           "enum",
	TypeTransform:      "transform",
	TypeBooleanArray:   "boolean[]",
	TypeFloatArray:     "float[]",
	TypeIntArray:       "int[]",
	TypeColorArray:     "color[]",
	TypeVectorArray:    "vector[]",
	TypePointArray:     "point[]",
	TypeNormalArray:    "normal[]",
	TypePoint2Array:    "point2[]",
	TypeStringArray:    "string[]",
	TypeTransformArray: "transform[]",
}

func (t SocketType) String() string {
	if int(t) < len(socketTypeNames) {
		return socketTypeNames[t]
	}
	return fmt.Sprintf("SocketType(%d)", t)
}

// ParseSocketType accepts the names produced by String.
func ParseSocketType(s string) (SocketType, bool) {
	for i, name := range socketTypeNames {
		if name == s {
			return SocketType(i), true
		}
	}
	return TypeUndefined, false
}

func (t SocketType) IsArray() bool { return t >= TypeBooleanArray && t <= TypeTransformArray }

// IsVector3 reports whether values of t are three-component float vectors.
func (t SocketType) IsVector3() bool {
	switch t {
	case TypeColor, TypeVector, TypePoint, TypeNormal:
		return true
	}
	return false
}

// Elem returns the element type of an array type, or t itself.
func (t SocketType) Elem() SocketType {
	switch t {
	case TypeBooleanArray:
		return TypeBoolean
	case TypeFloatArray:
		return TypeFloat
	case TypeIntArray:
		return TypeInt
	case TypeColorArray:
		return TypeColor
	case TypeVectorArray:
		return TypeVector
	case TypePointArray:
		return TypePoint
	case TypeNormalArray:
		return TypeNormal
	case TypePoint2Array:
		return TypePoint2
	case TypeStringArray:
		return TypeString
	case TypeTransformArray:
		return TypeTransform
	}
	return t
}

// ArrayOf returns the array form of an element type.
func ArrayOf(t SocketType) (SocketType, bool) {
	switch t {
	case TypeBoolean:
		return TypeBooleanArray, true
	case TypeFloat:
		return TypeFloatArray, true
	case TypeInt:
		return TypeIntArray, true
	case TypeColor:
		return TypeColorArray, true
	case TypeVector:
		return TypeVectorArray, true
	case TypePoint:
		return TypePointArray, true
	case TypeNormal:
		return TypeNormalArray, true
	case TypePoint2:
		return TypePoint2Array, true
	case TypeString:
		return TypeStringArray, true
	case TypeTransform:
		return TypeTransformArray, true
	}
	return TypeUndefined, false
}

// Compatible reports whether an output of type from may feed an input of type to.
// Three-component vectors convert freely, as do the integral and float scalars.
func Compatible(from, to SocketType) bool {
	if from == to {
		return true
	}
	if from == TypeClosure || to == TypeClosure {
		return false
	}
	if from.IsVector3() && to.IsVector3() {
		return true
	}
	return isScalar(from) && isScalar(to)
}

func isScalar(t SocketType) bool {
	switch t {
	case TypeBoolean, TypeFloat, TypeInt, TypeUInt:
		return true
	}
	return false
}
