package odx

// DiagCodedType describes how an internal value occupies bits on the
// wire: a fixed bit length, a length governed by a separately decoded
// length-key parameter, or a min/max byte range with a termination
// condition.
type DiagCodedType interface {
	BaseType() DataType
	// StaticBitLength returns the fixed bit width of the type, or false
	// when the width depends on the message or the value being encoded.
	StaticBitLength() (int, bool)
	// DecodeValue reads the internal value at the state cursor and
	// advances the cursor.
	DecodeValue(st *DecodeState) (any, error)
	// EncodeValue writes the internal value at the state cursor and
	// advances the cursor.
	EncodeValue(st *EncodeState, internal any) error
}

// StandardLengthType occupies a fixed number of bits. An optional bit
// mask restricts which bits of the raw value are meaningful.
type StandardLengthType struct {
	Type      DataType
	BitLength int
	// BitMask, when set, is ANDed onto the raw value in both directions.
	BitMask    uint64
	HasBitMask bool
	// LittleEndian applies to multi-byte numeric values only.
	LittleEndian bool
}

func (t *StandardLengthType) BaseType() DataType { return t.Type }

func (t *StandardLengthType) StaticBitLength() (int, bool) { return t.BitLength, true }

func (t *StandardLengthType) DecodeValue(st *DecodeState) (any, error) {
	value, err := st.ExtractAtomicValue(t.BitLength, t.Type, !t.LittleEndian)
	if err != nil {
		return nil, err
	}
	if t.HasBitMask {
		switch v := value.(type) {
		case uint64:
			value = v & t.BitMask
		case int64:
			value = int64(uint64(v) & t.BitMask)
		}
	}
	return value, nil
}

func (t *StandardLengthType) EncodeValue(st *EncodeState, internal any) error {
	if t.HasBitMask {
		if v, ok := asUint64(internal); ok {
			internal = v & t.BitMask
		}
	}
	return st.EmplaceAtomicValue(internal, t.BitLength, t.Type, !t.LittleEndian)
}

// ParamLengthInfoType has its byte length governed by the current value
// of a named length-key parameter elsewhere in the structure.
type ParamLengthInfoType struct {
	Type DataType
	// LengthKeyName is the short name of the governing length-key
	// parameter. Its value counts bytes.
	LengthKeyName string
	LittleEndian  bool
}

func (t *ParamLengthInfoType) BaseType() DataType { return t.Type }

func (t *ParamLengthInfoType) StaticBitLength() (int, bool) { return 0, false }

func (t *ParamLengthInfoType) DecodeValue(st *DecodeState) (any, error) {
	byteLen, ok := st.LengthKeys[t.LengthKeyName]
	if !ok {
		return nil, decodeErrorf("length key %q has not been decoded yet", t.LengthKeyName)
	}
	return st.ExtractAtomicValue(byteLen*8, t.Type, !t.LittleEndian)
}

func (t *ParamLengthInfoType) EncodeValue(st *EncodeState, internal any) error {
	byteLen, ok := st.LengthKeys[t.LengthKeyName]
	if !ok {
		// The key was not supplied by the caller: derive the length from
		// the value and register it for the second encoding pass.
		byteLen, ok = t.implicitByteLength(internal)
		if !ok {
			return encodeErrorf("cannot derive a byte length for value %v governed by length key %q",
				internal, t.LengthKeyName)
		}
		st.LengthKeys[t.LengthKeyName] = byteLen
	}
	return st.EmplaceAtomicValue(internal, byteLen*8, t.Type, !t.LittleEndian)
}

func (t *ParamLengthInfoType) implicitByteLength(internal any) (int, bool) {
	switch t.Type {
	case TypeBytes, TypeString:
		b, ok := asBytes(internal)
		if !ok {
			return 0, false
		}
		return len(b), true
	case TypeFloat32:
		return 4, true
	case TypeFloat64:
		return 8, true
	case TypeUint, TypeInt:
		v, ok := asUint64(internal)
		if !ok {
			iv, iok := asInt64(internal)
			if !iok {
				return 0, false
			}
			if iv < 0 {
				iv = ^iv
			}
			v = uint64(iv) << 1
		}
		n := 1
		for v > 0xFF {
			v >>= 8
			n++
		}
		return n, true
	}
	return 0, false
}

// Termination says how a min/max length field ends.
type Termination int

const (
	// TerminateEndOfPDU: the field extends to the end of the enclosing
	// buffer (or to its maximum length).
	TerminateEndOfPDU Termination = iota
	// TerminateZero: the field ends at a 0x00 byte, which is consumed
	// but not part of the value.
	TerminateZero
	// TerminateHexFF: like TerminateZero with a 0xFF byte.
	TerminateHexFF
)

func (t Termination) String() string {
	switch t {
	case TerminateEndOfPDU:
		return "END-OF-PDU"
	case TerminateZero:
		return "ZERO"
	case TerminateHexFF:
		return "HEX-FF"
	}
	return "Termination(?)"
}

// MinMaxLengthType is a variable-length byte field or string bounded by
// a minimum and an optional maximum byte count. Only byte fields and
// strings may use it.
type MinMaxLengthType struct {
	Type      DataType
	MinLength int
	// MaxLength of 0 means unbounded.
	MaxLength   int
	Termination Termination
}

func (t *MinMaxLengthType) BaseType() DataType { return t.Type }

func (t *MinMaxLengthType) StaticBitLength() (int, bool) { return 0, false }

func (t *MinMaxLengthType) terminator() (byte, bool) {
	switch t.Termination {
	case TerminateZero:
		return 0x00, true
	case TerminateHexFF:
		return 0xFF, true
	}
	return 0, false
}

func (t *MinMaxLengthType) DecodeValue(st *DecodeState) (any, error) {
	if t.Type != TypeBytes && t.Type != TypeString {
		return nil, decodeErrorf("min/max length fields must be byte fields or strings, got %s", t.Type)
	}
	if st.BitCursor != 0 {
		return nil, decodeErrorf("min/max length fields must be byte aligned")
	}
	avail := len(st.Message) - st.Cursor
	if avail < t.MinLength {
		return nil, decodeErrorf("message too short: need at least %d bytes at position %d, have %d",
			t.MinLength, st.Cursor, avail)
	}
	limit := len(st.Message)
	if t.MaxLength > 0 && st.Cursor+t.MaxLength < limit {
		limit = st.Cursor + t.MaxLength
	}

	end := limit
	consumed := end - st.Cursor
	if term, ok := t.terminator(); ok {
		for i := st.Cursor + t.MinLength; i < limit; i++ {
			if st.Message[i] == term {
				end = i
				consumed = end - st.Cursor + 1
				break
			}
		}
	}

	buf := make([]byte, end-st.Cursor)
	copy(buf, st.Message[st.Cursor:end])
	st.Cursor += consumed

	if t.Type == TypeString {
		return string(buf), nil
	}
	return buf, nil
}

func (t *MinMaxLengthType) EncodeValue(st *EncodeState, internal any) error {
	if t.Type != TypeBytes && t.Type != TypeString {
		return encodeErrorf("min/max length fields must be byte fields or strings, got %s", t.Type)
	}
	if st.BitCursor != 0 {
		return encodeErrorf("min/max length fields must be byte aligned")
	}
	b, ok := asBytes(internal)
	if !ok {
		return encodeErrorf("value %v is not a byte field or string", internal)
	}
	if len(b) < t.MinLength {
		return encodeErrorf("value of %d bytes is shorter than the minimum length %d", len(b), t.MinLength)
	}
	if t.MaxLength > 0 && len(b) > t.MaxLength {
		return encodeErrorf("value of %d bytes exceeds the maximum length %d", len(b), t.MaxLength)
	}

	term, hasTerm := t.terminator()
	if !hasTerm {
		// END-OF-PDU fields carry no terminator, so they are only
		// unambiguous at the end of the buffer or at their maximum
		// length.
		if !st.IsEndOfPdu && (t.MaxLength == 0 || len(b) != t.MaxLength) {
			return encodeErrorf("an END-OF-PDU terminated field must be the last object of the buffer")
		}
		return st.EmplaceBytes(b, nil)
	}

	out := b
	if t.MaxLength == 0 || len(b) < t.MaxLength {
		out = make([]byte, len(b)+1)
		copy(out, b)
		out[len(b)] = term
	}
	return st.EmplaceBytes(out, nil)
}
