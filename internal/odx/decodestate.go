package odx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeState is the mutable cursor threaded through one decode call.
// A fresh state is built per call; the schema graph is never mutated.
type DecodeState struct {
	// Message is the complete coded message being decoded.
	Message []byte
	// Origin is the byte position all relative parameter positions
	// refer to, i.e. the first byte of the enclosing structure.
	Origin int
	// Cursor is the byte position of the next undecoded byte.
	Cursor int
	// BitCursor is the bit position [0,7], counted from the least
	// significant bit, where the next object begins.
	BitCursor int

	// LengthKeys holds the byte lengths decoded from length-key
	// parameters so far, by parameter short name.
	LengthKeys map[string]int
	// TableKeys holds the table rows selected by table-key parameters
	// so far, by parameter short name.
	TableKeys map[string]*TableRow

	Mode     Mode
	Warnings []Warning
}

func newDecodeState(message []byte, mode Mode) *DecodeState {
	return &DecodeState{
		Message:    message,
		LengthKeys: make(map[string]int),
		TableKeys:  make(map[string]*TableRow),
		Mode:       mode,
	}
}

// warnf records a warning-class condition, or returns a hard DecodeError
// in strict mode.
func (st *DecodeState) warnf(kind WarningKind, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if st.Mode == Strict {
		return &DecodeError{Msg: msg}
	}
	st.Warnings = append(st.Warnings, Warning{Kind: kind, Message: msg})
	return nil
}

// ExtractAtomicValue reads bitLength bits at the current cursor and
// converts them to the internal representation of baseType. Bits within
// a byte are numbered 7 (most significant) down to 0; BitCursor counts
// from bit 0. The cursor is advanced past the extracted object.
func (st *DecodeState) ExtractAtomicValue(bitLength int, baseType DataType, highLow bool) (any, error) {
	if bitLength == 0 {
		return zeroValue(baseType), nil
	}
	if baseType == TypeFloat32 && bitLength != 32 {
		return nil, decodeErrorf("float32 fields must be 32 bits, not %d", bitLength)
	}
	if baseType == TypeFloat64 && bitLength != 64 {
		return nil, decodeErrorf("float64 fields must be 64 bits, not %d", bitLength)
	}

	byteLen := (bitLength + st.BitCursor + 7) / 8
	if st.Cursor+byteLen > len(st.Message) {
		return nil, decodeErrorf("message too short: need %d bytes at position %d, have %d",
			byteLen, st.Cursor, len(st.Message)-st.Cursor)
	}
	window := st.Message[st.Cursor : st.Cursor+byteLen]

	var value any
	switch baseType {
	case TypeBytes, TypeString:
		if st.BitCursor != 0 || bitLength%8 != 0 {
			return nil, decodeErrorf("byte fields and strings must be byte aligned")
		}
		buf := make([]byte, byteLen)
		copy(buf, window)
		if baseType == TypeBytes {
			value = buf
		} else {
			value = string(buf)
		}
	default:
		if byteLen > 8 {
			return nil, decodeErrorf("numeric fields are limited to 64 bits (got %d)", bitLength)
		}
		raw := extractBits(window, st.BitCursor, bitLength, highLow)
		switch baseType {
		case TypeUint:
			value = raw
		case TypeInt:
			// two's complement sign extension
			value = int64(raw<<(64-uint(bitLength))) >> (64 - uint(bitLength))
		case TypeFloat32:
			value = float64(math.Float32frombits(uint32(raw)))
		case TypeFloat64:
			value = math.Float64frombits(raw)
		}
	}

	st.Cursor += byteLen
	st.BitCursor = 0
	return value, nil
}

// extractBits pulls bitLength bits out of window, skipping bitPos bits
// from the least significant end. For little-endian numeric values the
// window bytes are reversed before extraction.
func extractBits(window []byte, bitPos, bitLength int, highLow bool) uint64 {
	buf := window
	if !highLow {
		buf = make([]byte, len(window))
		for i, b := range window {
			buf[len(window)-1-i] = b
		}
	}
	var padded [8]byte
	copy(padded[8-len(buf):], buf)
	raw := binary.BigEndian.Uint64(padded[:])
	raw >>= uint(bitPos)
	if bitLength < 64 {
		raw &= (1 << uint(bitLength)) - 1
	}
	return raw
}

func zeroValue(t DataType) any {
	switch t {
	case TypeUint:
		return uint64(0)
	case TypeInt:
		return int64(0)
	case TypeFloat32, TypeFloat64:
		return float64(0)
	case TypeBytes:
		return []byte{}
	case TypeString:
		return ""
	}
	return nil
}
