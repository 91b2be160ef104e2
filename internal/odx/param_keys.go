package odx

import "fmt"

// LengthKeyParameter carries the byte length of one or more other
// parameters whose diag-coded-type declares "length governed by key X".
// On encode it emplaces a placeholder in the first pass; the governed
// parameter registers the actual length, which the second pass writes
// over the placeholder.
type LengthKeyParameter struct {
	ParamBase
	DOP *DataObjectProperty
}

func (p *LengthKeyParameter) IsRequired() bool { return false }
func (p *LengthKeyParameter) IsSettable() bool { return true }

func (p *LengthKeyParameter) isDependent() bool { return true }

func (p *LengthKeyParameter) staticBitLength() (int, bool) {
	return p.DOP.StaticBitLength()
}

func (p *LengthKeyParameter) encodeInto(st *EncodeState, physical any) error {
	if physical != nil {
		v, ok := asUint64(physical)
		if !ok {
			return encodeErrorf("length key %q requires an unsigned byte count, got %v",
				p.ShortName, physical)
		}
		st.LengthKeys[p.ShortName] = int(v)
	}
	bitLen, ok := p.DOP.StaticBitLength()
	if !ok {
		return encodeErrorf("length key %q requires a fixed-width DOP", p.ShortName)
	}
	st.keyPos[p.ShortName] = st.Cursor
	return st.EmplaceAtomicValue(uint64(0), bitLen, TypeUint, true)
}

func (p *LengthKeyParameter) encodeFinal(st *EncodeState) error {
	byteLen, ok := st.LengthKeys[p.ShortName]
	if !ok {
		return encodeErrorf("length key %q was never assigned a value", p.ShortName)
	}
	pos, ok := st.keyPos[p.ShortName]
	if !ok {
		return encodeErrorf("length key %q has no placeholder position", p.ShortName)
	}
	bitLen, _ := p.DOP.StaticBitLength()
	st.Cursor = pos
	st.BitCursor = p.BitPos
	st.clearUsed(pos, (bitLen+p.BitPos+7)/8)
	return p.DOP.EncodeValueInto(uint64(byteLen), st)
}

func (p *LengthKeyParameter) decodeFrom(st *DecodeState) (any, error) {
	value, err := p.DOP.DecodeValueFrom(st)
	if err != nil {
		return nil, err
	}
	n, ok := asUint64(value)
	if !ok {
		return nil, decodeErrorf("length key %q decoded to non-integer value %v", p.ShortName, value)
	}
	st.LengthKeys[p.ShortName] = int(n)
	return value, nil
}

// TableKeyParameter selects one row of a table. Its decoded key value
// picks the row; on encode the row is chosen either by the caller (row
// short name) or by the table-struct parameter it governs, and the key
// value is written in the second pass.
type TableKeyParameter struct {
	ParamBase
	Table *Table
}

func (p *TableKeyParameter) IsRequired() bool { return false }
func (p *TableKeyParameter) IsSettable() bool { return true }

func (p *TableKeyParameter) isDependent() bool { return true }

func (p *TableKeyParameter) staticBitLength() (int, bool) {
	return p.Table.KeyDOP.StaticBitLength()
}

func (p *TableKeyParameter) encodeInto(st *EncodeState, physical any) error {
	if physical != nil {
		name, ok := physical.(string)
		if !ok {
			return encodeErrorf("table key %q requires a row short name, got %v", p.ShortName, physical)
		}
		row := p.Table.RowByName(name)
		if row == nil {
			return encodeErrorf("table %q has no row named %q", p.Table.ShortName, name)
		}
		st.TableKeys[p.ShortName] = row
	}
	bitLen, ok := p.Table.KeyDOP.StaticBitLength()
	if !ok {
		return encodeErrorf("table key %q requires a fixed-width key DOP", p.ShortName)
	}
	st.keyPos[p.ShortName] = st.Cursor
	return st.EmplaceAtomicValue(uint64(0), bitLen, TypeUint, true)
}

func (p *TableKeyParameter) encodeFinal(st *EncodeState) error {
	row, ok := st.TableKeys[p.ShortName]
	if !ok {
		return encodeErrorf("table key %q was never resolved to a row", p.ShortName)
	}
	pos, ok := st.keyPos[p.ShortName]
	if !ok {
		return encodeErrorf("table key %q has no placeholder position", p.ShortName)
	}
	bitLen, _ := p.Table.KeyDOP.StaticBitLength()
	st.Cursor = pos
	st.BitCursor = p.BitPos
	st.clearUsed(pos, (bitLen+p.BitPos+7)/8)
	return p.Table.KeyDOP.EncodeValueInto(row.Key, st)
}

func (p *TableKeyParameter) decodeFrom(st *DecodeState) (any, error) {
	key, err := p.Table.KeyDOP.DecodeValueFrom(st)
	if err != nil {
		return nil, err
	}
	row := p.Table.RowByKey(key)
	if row == nil {
		return nil, decodeErrorf("table %q has no case for key value %v and no default",
			p.Table.ShortName, key)
	}
	st.TableKeys[p.ShortName] = row
	return row.ShortName, nil
}

// TableStructParameter codes the payload of the row selected by its
// governing table-key parameter: a discriminated union over the table's
// cases.
type TableStructParameter struct {
	ParamBase
	Table        *Table
	TableKeyName string
}

func (p *TableStructParameter) IsRequired() bool { return true }
func (p *TableStructParameter) IsSettable() bool { return true }

func (p *TableStructParameter) staticBitLength() (int, bool) { return 0, false }

func (p *TableStructParameter) encodeInto(st *EncodeState, physical any) error {
	tsv, ok := physical.(TableStructValue)
	if !ok {
		return encodeErrorf("parameter %q requires a table-struct value, got %v", p.ShortName, physical)
	}
	row := p.Table.RowByName(tsv.Row)
	if row == nil {
		return encodeErrorf("table %q has no row named %q", p.Table.ShortName, tsv.Row)
	}
	st.TableKeys[p.TableKeyName] = row

	switch {
	case row.Structure != nil:
		values, ok := tsv.Value.(ParameterValues)
		if !ok {
			return encodeErrorf("row %q requires a parameter value map, got %v", row.ShortName, tsv.Value)
		}
		return row.Structure.EncodeValueInto(values, st)
	case row.DOP != nil:
		return row.DOP.EncodeValueInto(tsv.Value, st)
	}
	return encodeErrorf("row %q of table %q has no payload definition", row.ShortName, p.Table.ShortName)
}

func (p *TableStructParameter) decodeFrom(st *DecodeState) (any, error) {
	row, ok := st.TableKeys[p.TableKeyName]
	if !ok {
		return nil, decodeErrorf("table key %q has not been decoded yet", p.TableKeyName)
	}
	switch {
	case row.Structure != nil:
		values, err := row.Structure.DecodeValueFrom(st)
		if err != nil {
			return nil, err
		}
		return TableStructValue{Row: row.ShortName, Value: values}, nil
	case row.DOP != nil:
		value, err := row.DOP.DecodeValueFrom(st)
		if err != nil {
			return nil, err
		}
		return TableStructValue{Row: row.ShortName, Value: value}, nil
	}
	return nil, decodeErrorf("row %q of table %q has no payload definition", row.ShortName, p.Table.ShortName)
}

// TableEntryParameter references a single fixed table row. It is part
// of the schema model but carries no coding semantics.
type TableEntryParameter struct {
	ParamBase
	Table   *Table
	RowName string
}

func (p *TableEntryParameter) IsRequired() bool { return false }
func (p *TableEntryParameter) IsSettable() bool { return false }

func (p *TableEntryParameter) staticBitLength() (int, bool) { return 0, false }

func (p *TableEntryParameter) encodeInto(st *EncodeState, physical any) error {
	return fmt.Errorf("table entry parameter %q: %w", p.ShortName, ErrUnsupported)
}

func (p *TableEntryParameter) decodeFrom(st *DecodeState) (any, error) {
	return nil, fmt.Errorf("table entry parameter %q: %w", p.ShortName, ErrUnsupported)
}
