package odx

// Structure is an ordered, named collection of parameters. It is built
// once during schema loading and never mutated afterwards, so
// concurrent encode and decode calls against it are safe.
type Structure struct {
	ShortName string
	// ByteSize, when set, is the exact encoded size in bytes: shorter
	// content is zero padded, longer content is a hard encode error.
	ByteSize *int
	Params   []Parameter
}

func (s *Structure) DOPName() string { return s.ShortName }

// ParamByName returns the parameter with the given short name, or nil.
func (s *Structure) ParamByName(name string) Parameter {
	for _, p := range s.Params {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// RequiredParameters lists the short names of parameters a caller must
// supply on encode.
func (s *Structure) RequiredParameters() []string {
	var names []string
	for _, p := range s.Params {
		if p.IsRequired() {
			names = append(names, p.Name())
		}
	}
	return names
}

// StaticBitLength simulates parameter placement to derive the fixed
// wire width, when every parameter has one. Atomic writes always
// advance to the next byte boundary, so a parameter's span is rounded
// up to whole bytes.
func (s *Structure) StaticBitLength() (int, bool) {
	cursorBits := 0
	endBits := 0
	for _, p := range s.Params {
		n, ok := p.staticBitLength()
		if !ok {
			return 0, false
		}
		if pos, hasPos := p.BytePosition(); hasPos {
			cursorBits = pos * 8
		}
		if n > 0 {
			cursorBits += (n + p.BitPosition() + 7) / 8 * 8
		}
		if cursorBits > endBits {
			endBits = cursorBits
		}
	}
	if s.ByteSize != nil {
		return *s.ByteSize * 8, true
	}
	return endBits, true
}

// Validate performs the schema-level checks that reject a malformed
// structure at load time instead of per message: unique parameter
// names, variable-length tails placed last, and resolvable key
// references.
func (s *Structure) Validate() error {
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if seen[p.Name()] {
			return encodeErrorf("structure %q declares parameter %q more than once",
				s.ShortName, p.Name())
		}
		seen[p.Name()] = true
	}

	for i, p := range s.Params {
		if consumesRemainder(p) && i != len(s.Params)-1 {
			return encodeErrorf("structure %q: parameter %q consumes the rest of the buffer and must be last",
				s.ShortName, p.Name())
		}
		switch tp := p.(type) {
		case *TableStructParameter:
			if s.ParamByName(tp.TableKeyName) == nil {
				return encodeErrorf("structure %q: parameter %q references unknown table key %q",
					s.ShortName, tp.ShortName, tp.TableKeyName)
			}
		case *ValueParameter:
			if pli, ok := diagCodedOf(tp.DOP).(*ParamLengthInfoType); ok {
				if s.ParamByName(pli.LengthKeyName) == nil {
					return encodeErrorf("structure %q: parameter %q references unknown length key %q",
						s.ShortName, tp.ShortName, pli.LengthKeyName)
				}
			}
		}
	}
	return nil
}

// consumesRemainder reports whether p can only end with its enclosing
// buffer.
func consumesRemainder(p Parameter) bool {
	vp, ok := p.(*ValueParameter)
	if !ok {
		return false
	}
	if _, ok := vp.DOP.(*EndOfPduField); ok {
		return true
	}
	if mm, ok := diagCodedOf(vp.DOP).(*MinMaxLengthType); ok {
		return mm.Termination == TerminateEndOfPDU && mm.MaxLength == 0
	}
	return false
}

func diagCodedOf(d DOP) DiagCodedType {
	if dop, ok := d.(*DataObjectProperty); ok {
		return dop.DiagCoded
	}
	return nil
}

// Encode converts a physical value assignment into the coded form of
// the structure. The triggering request is required only when the
// structure contains matching-request parameters.
func (s *Structure) Encode(values ParameterValues, triggeringRequest []byte, mode Mode) ([]byte, []Warning, error) {
	st := newEncodeState(mode, triggeringRequest)
	if err := s.encodeValues(values, st); err != nil {
		return nil, st.Warnings, err
	}
	return st.Coded, st.Warnings, nil
}

// encodeValues runs the two-pass encode at the current state cursor.
// Pass 1 places every parameter in declaration order; pass 2 revisits
// the length-key and table-key parameters, whose values are derived
// from the sizes and choices encoded in pass 1.
func (s *Structure) encodeValues(values ParameterValues, st *EncodeState) error {
	for name := range values {
		if s.ParamByName(name) == nil {
			return encodeErrorf("structure %q has no parameter named %q", s.ShortName, name)
		}
	}

	prevOrigin := st.Origin
	outerEndOfPdu := st.IsEndOfPdu
	st.Origin = st.Cursor

	for i, p := range s.Params {
		st.IsEndOfPdu = outerEndOfPdu && i == len(s.Params)-1
		before := st.Cursor
		if err := encodeParameter(p, st, values[p.Name()]); err != nil {
			return err
		}
		if st.Cursor < before {
			st.Cursor = before
		}
	}
	st.IsEndOfPdu = outerEndOfPdu
	end := st.Cursor

	for _, p := range s.Params {
		dp, ok := p.(dependentParameter)
		if !ok {
			continue
		}
		if err := dp.encodeFinal(st); err != nil {
			return err
		}
	}
	st.Cursor = end

	if s.ByteSize != nil {
		content := end - st.Origin
		if content > *s.ByteSize {
			return encodeErrorf("structure %q encoded to %d bytes, exceeding its declared size of %d",
				s.ShortName, content, *s.ByteSize)
		}
		if pad := *s.ByteSize - content; pad > 0 {
			if err := st.EmplaceBytes(make([]byte, pad), nil); err != nil {
				return err
			}
		}
		end = st.Cursor
	}

	if static, ok := s.StaticBitLength(); ok && (end-st.Origin)*8 != static {
		if err := st.warnf(WarnLengthMismatch, "structure %q encoded to %d bits, expected %d",
			s.ShortName, (end-st.Origin)*8, static); err != nil {
			return err
		}
	}

	st.Origin = prevOrigin
	return nil
}

// Decode interprets message as one instance of the structure. It
// returns the decoded values, the number of consumed bytes, and the
// warnings accumulated along the way. Trailing unconsumed bytes are a
// warning, not a failure.
func (s *Structure) Decode(message []byte, mode Mode) (ParameterValues, int, []Warning, error) {
	st := newDecodeState(message, mode)
	values, err := s.decodeValues(st)
	if err != nil {
		return nil, 0, st.Warnings, err
	}
	if st.Cursor < len(message) {
		if err := st.warnf(WarnTrailingBytes, "%d trailing bytes after position %d were not decoded",
			len(message)-st.Cursor, st.Cursor); err != nil {
			return nil, 0, st.Warnings, err
		}
	}
	return values, st.Cursor, st.Warnings, nil
}

// decodeValues decodes one instance at the current state cursor. The
// cursor advances to max(cursor, position after the parameter), which
// tolerates parameters placed inside the span of a preceding
// variable-length field.
func (s *Structure) decodeValues(st *DecodeState) (ParameterValues, error) {
	prevOrigin := st.Origin
	st.Origin = st.Cursor

	values := make(ParameterValues, len(s.Params))
	for _, p := range s.Params {
		before := st.Cursor
		value, err := decodeParameter(p, st)
		if err != nil {
			return nil, err
		}
		if st.Cursor < before {
			st.Cursor = before
		}
		if value != nil {
			values[p.Name()] = value
		}
	}

	if s.ByteSize != nil {
		content := st.Cursor - st.Origin
		if content > *s.ByteSize {
			return nil, decodeErrorf("structure %q consumed %d bytes, exceeding its declared size of %d",
				s.ShortName, content, *s.ByteSize)
		}
		if st.Origin+*s.ByteSize > len(st.Message) {
			return nil, decodeErrorf("message too short for structure %q of %d bytes",
				s.ShortName, *s.ByteSize)
		}
		st.Cursor = st.Origin + *s.ByteSize
	}

	st.Origin = prevOrigin
	return values, nil
}

// EncodeValueInto lets a structure act as the DOP of a value parameter
// (nested structures).
func (s *Structure) EncodeValueInto(physical any, st *EncodeState) error {
	values, ok := physical.(ParameterValues)
	if !ok {
		return encodeErrorf("structure %q requires a parameter value map, got %v", s.ShortName, physical)
	}
	return s.encodeValues(values, st)
}

// DecodeValueFrom lets a structure act as the DOP of a value parameter.
func (s *Structure) DecodeValueFrom(st *DecodeState) (any, error) {
	return s.decodeValues(st)
}
