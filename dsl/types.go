package dsl

import (
	"strconv"

	bitskema "github.com/reoring/bitskema"
)

type typeKind int

const (
	kindScalar typeKind = iota
	kindSchema
	kindSeq
	kindOpt
)

// FieldType is the declared type of a field: a scalar, a nested schema, a
// sequence of either, or an optional of either.
type FieldType struct {
	kind   typeKind
	scalar bitskema.Scalar
	schema bitskema.Schema
	elem   *FieldType
}

// U returns an unsigned integer type of width bits (1..64).
func U(width int) FieldType { return FieldType{kind: kindScalar, scalar: bitskema.Scalar{Width: width}} }

// I returns a two's complement signed integer type of width bits (1..64).
func I(width int) FieldType {
	return FieldType{kind: kindScalar, scalar: bitskema.Scalar{Width: width, Signed: true}}
}

func U8() FieldType  { return U(8) }
func U16() FieldType { return U(16) }
func U32() FieldType { return U(32) }
func U64() FieldType { return U(64) }
func I8() FieldType  { return I(8) }
func I16() FieldType { return I(16) }
func I32() FieldType { return I(32) }
func I64() FieldType { return I(64) }

// Bool is a single bit.
func Bool() FieldType { return FieldType{kind: kindScalar, scalar: bitskema.Bool} }

// Scalar wraps an already parsed scalar.
func Scalar(s bitskema.Scalar) FieldType { return FieldType{kind: kindScalar, scalar: s} }

// Of reads a nested schema.
func Of(s bitskema.Schema) FieldType { return FieldType{kind: kindSchema, schema: s} }

// SeqOf is a repeated field; it needs a count or while option (or a reader).
func SeqOf(elem FieldType) FieldType { return FieldType{kind: kindSeq, elem: &elem} }

// OptionalOf is a conditionally present field; it needs a when option (or a
// reader).
func OptionalOf(elem FieldType) FieldType { return FieldType{kind: kindOpt, elem: &elem} }

// String renders the type in schema document syntax: u8, [u8], u8?, Name.
func (t FieldType) String() string {
	switch t.kind {
	case kindScalar:
		return t.scalar.String()
	case kindSchema:
		if t.schema == nil {
			return "<nil>"
		}
		return t.schema.Name()
	case kindSeq:
		return "[" + t.elem.String() + "]"
	case kindOpt:
		return t.elem.String() + "?"
	}
	return "kind(" + strconv.Itoa(int(t.kind)) + ")"
}

// check reports a problem with the type itself, independent of options.
func (t FieldType) check() string {
	switch t.kind {
	case kindScalar:
		if !t.scalar.Bool && (t.scalar.Width < 1 || t.scalar.Width > 64) {
			return "integer width must be 1..64, got " + strconv.Itoa(t.scalar.Width)
		}
	case kindSchema:
		if t.schema == nil {
			return "nil nested schema"
		}
	case kindSeq, kindOpt:
		if t.elem == nil {
			return "missing element type"
		}
		if t.elem.kind == kindSeq || t.elem.kind == kindOpt {
			return "element of " + t.String() + " must be a scalar or a schema"
		}
		return t.elem.check()
	}
	return ""
}

// target is the type actually read from the stream (the element type for
// sequences and optionals).
func (t FieldType) target() FieldType {
	if t.kind == kindSeq || t.kind == kindOpt {
		return *t.elem
	}
	return t
}
