package odx

// EndOfPduField is a homogeneous list of sub-structure repetitions that
// extends to the end of the enclosing buffer. It may only appear as the
// last object of its structure; Validate rejects any other placement.
type EndOfPduField struct {
	ShortName string
	Structure *Structure
	MinItems  int
	// MaxItems of 0 means unbounded.
	MaxItems int
}

func (f *EndOfPduField) DOPName() string { return f.ShortName }

func (f *EndOfPduField) StaticBitLength() (int, bool) { return 0, false }

func (f *EndOfPduField) EncodeValueInto(physical any, st *EncodeState) error {
	items, ok := physical.([]ParameterValues)
	if !ok {
		return encodeErrorf("field %q requires a list of parameter value maps, got %v",
			f.ShortName, physical)
	}
	if len(items) < f.MinItems {
		return encodeErrorf("field %q requires at least %d items, got %d",
			f.ShortName, f.MinItems, len(items))
	}
	if f.MaxItems > 0 && len(items) > f.MaxItems {
		return encodeErrorf("field %q allows at most %d items, got %d",
			f.ShortName, f.MaxItems, len(items))
	}
	if !st.IsEndOfPdu {
		return encodeErrorf("field %q must be the last object of the buffer", f.ShortName)
	}
	// Only the final repetition ends the buffer. A non-final item whose
	// structure needs the end of the PDU to delimit itself would encode
	// ambiguous bytes, so it must fail.
	for i, item := range items {
		st.IsEndOfPdu = i == len(items)-1
		if err := f.Structure.encodeValues(item, st); err != nil {
			st.IsEndOfPdu = true
			return err
		}
	}
	st.IsEndOfPdu = true
	return nil
}

// DecodeValueFrom decodes repetitions until the buffer is exhausted or
// the maximum item count is reached. A remainder too short for one more
// complete repetition yields the repetitions decoded so far plus a
// trailing-bytes warning, never a hard failure.
func (f *EndOfPduField) DecodeValueFrom(st *DecodeState) (any, error) {
	items := []ParameterValues{}
	for st.Cursor < len(st.Message) {
		if f.MaxItems > 0 && len(items) >= f.MaxItems {
			break
		}
		before := st.Cursor
		item, err := f.Structure.decodeValues(st)
		if err != nil {
			if len(items) < f.MinItems {
				return nil, err
			}
			// The field owns the remainder of the buffer: swallow the
			// incomplete tail and report it.
			st.Cursor = len(st.Message)
			st.BitCursor = 0
			if werr := st.warnf(WarnTrailingBytes, "field %q: %d trailing bytes do not form a complete item",
				f.ShortName, len(st.Message)-before); werr != nil {
				return nil, werr
			}
			break
		}
		if st.Cursor == before {
			return nil, decodeErrorf("field %q: item %d consumed no bytes", f.ShortName, len(items))
		}
		items = append(items, item)
	}
	if len(items) < f.MinItems {
		return nil, decodeErrorf("field %q requires at least %d items, decoded %d",
			f.ShortName, f.MinItems, len(items))
	}
	return items, nil
}
