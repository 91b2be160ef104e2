package odx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeState is the mutable cursor threaded through one encode call:
// the payload constructed so far, a mask of the bits already used, the
// cursor, and the registries for dependent (length/table key)
// parameters.
type EncodeState struct {
	// Coded is the payload constructed so far.
	Coded []byte
	// usedMask marks the bits of Coded that have been written. Writing
	// follows an additive-OR rule; a collision with already-used bits
	// is reported as an overlap warning.
	usedMask []byte

	// Origin is the byte position relative positions refer to.
	Origin int
	// Cursor is the byte position where the next object is placed.
	Cursor int
	// BitCursor is the bit position [0,7], from the least significant
	// bit, where the next object is placed.
	BitCursor int

	// TriggeringRequest is the coded request that triggered the
	// response being encoded, if any.
	TriggeringRequest []byte

	// LengthKeys maps length-key short names to byte lengths. Keys may
	// be set explicitly by the caller or implicitly by the parameter
	// whose length they govern.
	LengthKeys map[string]int
	// TableKeys maps table-key short names to the selected table row.
	TableKeys map[string]*TableRow
	// keyPos remembers where each length/table key's placeholder was
	// emplaced so the second encoding pass can write the real value.
	keyPos map[string]int

	// IsEndOfPdu is true while the object being encoded is the last
	// one of a buffer without an explicit total size.
	IsEndOfPdu bool

	Mode     Mode
	Warnings []Warning
}

func newEncodeState(mode Mode, triggeringRequest []byte) *EncodeState {
	return &EncodeState{
		TriggeringRequest: triggeringRequest,
		LengthKeys:        make(map[string]int),
		TableKeys:         make(map[string]*TableRow),
		keyPos:            make(map[string]int),
		IsEndOfPdu:        true,
		Mode:              mode,
	}
}

// warnf records a warning-class condition, or returns a hard EncodeError
// in strict mode.
func (st *EncodeState) warnf(kind WarningKind, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if st.Mode == Strict {
		return &EncodeError{Msg: msg}
	}
	st.Warnings = append(st.Warnings, Warning{Kind: kind, Message: msg})
	return nil
}

// EmplaceAtomicValue converts an internal value to its wire form and
// writes it at the current cursor.
func (st *EncodeState) EmplaceAtomicValue(internal any, bitLength int, baseType DataType, highLow bool) error {
	if bitLength == 0 {
		return st.EmplaceBytes(nil, nil)
	}

	switch baseType {
	case TypeBytes, TypeString:
		if st.BitCursor != 0 {
			return encodeErrorf("byte fields and strings must be byte aligned")
		}
		if bitLength%8 != 0 {
			return encodeErrorf("byte field bit length %d is not a whole number of bytes", bitLength)
		}
		b, ok := asBytes(internal)
		if !ok {
			return encodeErrorf("value %v is not a byte field or string", internal)
		}
		if 8*len(b) != bitLength {
			return encodeErrorf("value of %d bytes cannot be encoded using %d bits", len(b), bitLength)
		}
		return st.EmplaceBytes(b, nil)
	}

	// numeric types
	if bitLength+st.BitCursor > 64 {
		return encodeErrorf("numeric fields are limited to 64 bits (got %d at bit position %d)",
			bitLength, st.BitCursor)
	}
	var raw uint64
	switch baseType {
	case TypeUint:
		v, ok := asUint64(internal)
		if !ok {
			return encodeErrorf("value %v is not an unsigned integer", internal)
		}
		if bitLength < 64 && v >= 1<<uint(bitLength) {
			return encodeErrorf("value %d cannot be encoded using %d bits", v, bitLength)
		}
		raw = v
	case TypeInt:
		v, ok := asInt64(internal)
		if !ok {
			return encodeErrorf("value %v is not a signed integer", internal)
		}
		if bitLength < 64 {
			lo := -(int64(1) << uint(bitLength-1))
			hi := int64(1)<<uint(bitLength-1) - 1
			if v < lo || v > hi {
				return encodeErrorf("value %d cannot be encoded using %d bits", v, bitLength)
			}
			raw = uint64(v) & (1<<uint(bitLength) - 1)
		} else {
			raw = uint64(v)
		}
	case TypeFloat32:
		if bitLength != 32 {
			return encodeErrorf("float32 fields must be 32 bits, not %d", bitLength)
		}
		v, ok := asFloat64(internal)
		if !ok {
			return encodeErrorf("value %v is not a float", internal)
		}
		raw = uint64(math.Float32bits(float32(v)))
	case TypeFloat64:
		if bitLength != 64 {
			return encodeErrorf("float64 fields must be 64 bits, not %d", bitLength)
		}
		v, ok := asFloat64(internal)
		if !ok {
			return encodeErrorf("value %v is not a float", internal)
		}
		raw = math.Float64bits(v)
	}

	byteLen := (bitLength + st.BitCursor + 7) / 8
	data := packBits(raw, st.BitCursor, byteLen)
	var mask uint64 = ^uint64(0)
	if bitLength < 64 {
		mask = 1<<uint(bitLength) - 1
	}
	maskBytes := packBits(mask, st.BitCursor, byteLen)

	if !highLow {
		reverseBytes(data)
		reverseBytes(maskBytes)
	}

	st.BitCursor = 0
	return st.EmplaceBytes(data, maskBytes)
}

// EmplaceBytes writes data at the current byte cursor. Bits set in mask
// (nil means all bits) are ORed into the payload; if any of them are
// already used an overlap warning is reported, since a collision means
// two parameters claim the same bits. The buffer grows as needed and the
// cursor advances past the written bytes.
func (st *EncodeState) EmplaceBytes(data []byte, mask []byte) error {
	if st.BitCursor != 0 {
		return encodeErrorf("EmplaceBytes requires a bit position of 0")
	}
	pos := st.Cursor
	need := pos + len(data)
	for len(st.Coded) < need {
		st.Coded = append(st.Coded, 0)
		st.usedMask = append(st.usedMask, 0)
	}

	overlapped := false
	for i := range data {
		m := byte(0xFF)
		if mask != nil {
			m = mask[i]
		}
		if st.usedMask[pos+i]&m != 0 {
			overlapped = true
		}
		st.Coded[pos+i] = st.Coded[pos+i]&^m | data[i]&m
		st.usedMask[pos+i] |= m
	}
	st.Cursor = pos + len(data)

	if overlapped {
		if err := st.warnf(WarnOverlap, "overlapping objects detected between bytes %d and %d",
			pos, pos+len(data)); err != nil {
			return err
		}
	}
	return nil
}

// clearUsed unmarks n bytes starting at pos so the second encoding pass
// can overwrite a key placeholder without tripping overlap detection.
func (st *EncodeState) clearUsed(pos, n int) {
	for i := pos; i < pos+n && i < len(st.usedMask); i++ {
		st.usedMask[i] = 0
	}
}

// packBits renders value<<bitPos as byteLen big-endian bytes.
func packBits(value uint64, bitPos, byteLen int) []byte {
	var buf [16]byte
	hi := uint64(0)
	if bitPos > 0 {
		hi = value >> uint(64-bitPos)
	}
	binary.BigEndian.PutUint64(buf[0:8], hi)
	binary.BigEndian.PutUint64(buf[8:16], value<<uint(bitPos))
	out := make([]byte, byteLen)
	copy(out, buf[16-byteLen:])
	return out
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
