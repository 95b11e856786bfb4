package ir

import (
	"strconv"
	"strings"
)

// ElementType is the element type carried by an output port.
type ElementType int

// Element types.
const (
	Dynamic ElementType = iota
	F16
	BF16
	F32
	F64
	I8
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	Boolean
	String
)

var elementTypeNames = [...]string{
	Dynamic: "dynamic",
	F16:     "f16",
	BF16:    "bf16",
	F32:     "f32",
	F64:     "f64",
	I8:      "i8",
	I16:     "i16",
	I32:     "i32",
	I64:     "i64",
	U8:      "u8",
	U16:     "u16",
	U32:     "u32",
	U64:     "u64",
	Boolean: "boolean",
	String:  "string",
}

// String returns the short type name (e.g., "f32").
func (t ElementType) String() string {
	if t < 0 || int(t) >= len(elementTypeNames) {
		return "ElementType(" + strconv.Itoa(int(t)) + ")"
	}
	return elementTypeNames[t]
}

// IsDynamic reports whether the element type is not yet known.
func (t ElementType) IsDynamic() bool {
	return t == Dynamic
}

// Shape is a tensor shape. A nil Shape has dynamic rank; a -1 dimension is dynamic.
type Shape []int64

// DynamicDim marks a dimension whose size is unknown.
const DynamicDim int64 = -1

// IsStatic reports whether every dimension (and the rank) is known.
func (s Shape) IsStatic() bool {
	if s == nil {
		return false
	}
	for _, d := range s {
		if d < 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// String renders the shape as "[2,?,4]" or "[...]" for dynamic rank.
func (s Shape) String() string {
	if s == nil {
		return "[...]"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = strconv.FormatInt(d, 10)
		}
	}
	return "[" + strings.Join(parts, ",") + "]"
}
