// Package layout turns user-supplied contract state into the exact storage
// slot writes the EVM storage layout rules require.
package layout

import (
	"github.com/holiman/uint256"
)

// Encoding is the compiler's storage encoding tag for a type.
type Encoding string

const (
	EncodingInplace      Encoding = "inplace"
	EncodingMapping      Encoding = "mapping"
	EncodingDynamicArray Encoding = "dynamic_array"
	EncodingBytes        Encoding = "bytes"
)

type ScalarKind int

const (
	ScalarAddress ScalarKind = iota
	ScalarBool
	ScalarFixedBytes
	ScalarUint
	ScalarInt
	ScalarEnum
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarAddress:
		return "address"
	case ScalarBool:
		return "bool"
	case ScalarFixedBytes:
		return "bytesN"
	case ScalarUint:
		return "uintN"
	case ScalarInt:
		return "intN"
	case ScalarEnum:
		return "enum"
	default:
		return "unknown"
	}
}

type (
	// Type is one node of the storage type graph, keyed by its compiler type id.
	Type struct {
		ID            string
		Label         string
		Encoding      Encoding
		NumberOfBytes int
		Shape         Shape
	}

	// Variable is a storage entry: a top level state variable or a struct member.
	// Slot is relative to the enclosing base slot (zero for top level variables).
	Variable struct {
		Label  string
		Slot   *uint256.Int
		Offset int
		Type   *Type
	}

	// Layout is a contract's parsed storage layout.
	Layout struct {
		Storage []Variable
		Types   map[string]*Type
	}

	// Shape is the closed set of storage shapes. Only the types in this file
	// implement it, and every visitor must handle all of them.
	Shape interface {
		accept(v shapeVisitor, t *Type, c cursor) error
	}

	Scalar struct {
		Kind ScalarKind
		Size int
	}

	FixedArray struct {
		Base   *Type
		Length int
	}

	Struct struct {
		Members []Variable
	}

	Mapping struct {
		Key   *Type
		Value *Type
	}

	DynamicArray struct {
		Base *Type
	}

	Bytes struct {
		UTF8 bool
	}
)

type shapeVisitor interface {
	visitScalar(t *Type, s *Scalar, c cursor) error
	visitFixedArray(t *Type, a *FixedArray, c cursor) error
	visitStruct(t *Type, s *Struct, c cursor) error
	visitMapping(t *Type, m *Mapping, c cursor) error
	visitDynamicArray(t *Type, a *DynamicArray, c cursor) error
	visitBytes(t *Type, b *Bytes, c cursor) error
}

func (s *Scalar) accept(v shapeVisitor, t *Type, c cursor) error { return v.visitScalar(t, s, c) }
func (a *FixedArray) accept(v shapeVisitor, t *Type, c cursor) error {
	return v.visitFixedArray(t, a, c)
}
func (s *Struct) accept(v shapeVisitor, t *Type, c cursor) error  { return v.visitStruct(t, s, c) }
func (m *Mapping) accept(v shapeVisitor, t *Type, c cursor) error { return v.visitMapping(t, m, c) }
func (a *DynamicArray) accept(v shapeVisitor, t *Type, c cursor) error {
	return v.visitDynamicArray(t, a, c)
}
func (b *Bytes) accept(v shapeVisitor, t *Type, c cursor) error { return v.visitBytes(t, b, c) }

// Variable returns the top level variable with the given label.
func (l *Layout) Variable(label string) (Variable, bool) {
	for _, v := range l.Storage {
		if v.Label == label {
			return v, true
		}
	}
	return Variable{}, false
}
