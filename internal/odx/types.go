// Package odx implements a schema-driven bit-level codec for UDS-style
// diagnostic PDUs. The schema (structures, parameters, data object
// properties, compu methods) is built once by a loader and treated as
// immutable afterwards; every encode or decode call operates on a fresh,
// call-local state, so concurrent calls against the same schema are safe.
package odx

import "fmt"

// DataType is the base wire representation of an atomic value.
type DataType int

const (
	// TypeUint is an unsigned integer of up to 64 bits.
	TypeUint DataType = iota
	// TypeInt is a two's-complement signed integer of up to 64 bits.
	TypeInt
	// TypeFloat32 is an IEEE 754 single precision float (32 bits).
	TypeFloat32
	// TypeFloat64 is an IEEE 754 double precision float (64 bits).
	TypeFloat64
	// TypeBytes is an opaque byte field. Must be byte aligned.
	TypeBytes
	// TypeString is a UTF-8 string. Must be byte aligned.
	TypeString
)

func (t DataType) String() string {
	switch t {
	case TypeUint:
		return "uint"
	case TypeInt:
		return "int"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeBytes:
		return "bytes"
	case TypeString:
		return "string"
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// IsNumeric reports whether values of the type take part in byte-order
// swapping and bit-level packing.
func (t DataType) IsNumeric() bool {
	switch t {
	case TypeUint, TypeInt, TypeFloat32, TypeFloat64:
		return true
	}
	return false
}

// PhysicalValue is the human-meaningful representation of a decoded
// parameter. The concrete type depends on the parameter:
//
//	uint64, int64, float64, string, []byte  for atomic values
//	map[string]PhysicalValue                for nested structures
//	[]PhysicalValue                         for end-of-PDU fields
//	TableStructValue                        for table-struct parameters
type PhysicalValue = any

// ParameterValues maps parameter short names to their physical values.
type ParameterValues = map[string]PhysicalValue

// TableStructValue is the decoded form of a table-struct parameter: the
// short name of the selected table row plus the row's payload, a
// ParameterValues map for structure rows or a scalar for plain-DOP
// rows.
type TableStructValue struct {
	Row   string
	Value any
}

// Mode selects how warning-class conditions are treated. It is threaded
// explicitly through every encode/decode call; there is no global flag.
type Mode int

const (
	// Permissive reports warning-class conditions through the side
	// channel and continues. This is the default.
	Permissive Mode = iota
	// Strict escalates warning-class conditions to hard failures.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}
