package odx

// CodedConstParameter always emplaces a fixed internal value. It has no
// DOP; the internal and physical representations coincide.
type CodedConstParameter struct {
	ParamBase
	DiagCoded  DiagCodedType
	CodedValue any
}

func (p *CodedConstParameter) IsRequired() bool { return false }
func (p *CodedConstParameter) IsSettable() bool { return false }

func (p *CodedConstParameter) staticBitLength() (int, bool) {
	return p.DiagCoded.StaticBitLength()
}

func (p *CodedConstParameter) encodeInto(st *EncodeState, physical any) error {
	if physical != nil && !physicalEqual(physical, p.CodedValue) {
		return encodeErrorf("parameter %q is constant %v and cannot be set to %v",
			p.ShortName, p.CodedValue, physical)
	}
	return p.DiagCoded.EncodeValue(st, p.CodedValue)
}

func (p *CodedConstParameter) decodeFrom(st *DecodeState) (any, error) {
	value, err := p.DiagCoded.DecodeValue(st)
	if err != nil {
		return nil, err
	}
	if !physicalEqual(value, p.CodedValue) {
		if err := st.warnf(WarnConstMismatch, "parameter %q decoded to %v, expected constant %v",
			p.ShortName, value, p.CodedValue); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// PhysicalConstParameter always emplaces a fixed physical value,
// converted through its DOP.
type PhysicalConstParameter struct {
	ParamBase
	DOP           *DataObjectProperty
	PhysicalValue any
}

func (p *PhysicalConstParameter) IsRequired() bool { return false }
func (p *PhysicalConstParameter) IsSettable() bool { return false }

func (p *PhysicalConstParameter) staticBitLength() (int, bool) {
	return p.DOP.StaticBitLength()
}

func (p *PhysicalConstParameter) encodeInto(st *EncodeState, physical any) error {
	if physical != nil && !physicalEqual(physical, p.PhysicalValue) {
		return encodeErrorf("parameter %q is constant %v and cannot be set to %v",
			p.ShortName, p.PhysicalValue, physical)
	}
	return p.DOP.EncodeValueInto(p.PhysicalValue, st)
}

func (p *PhysicalConstParameter) decodeFrom(st *DecodeState) (any, error) {
	value, err := p.DOP.DecodeValueFrom(st)
	if err != nil {
		return nil, err
	}
	if !physicalEqual(value, p.PhysicalValue) {
		if err := st.warnf(WarnConstMismatch, "parameter %q decoded to %v, expected constant %v",
			p.ShortName, value, p.PhysicalValue); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// NrcConstParameter accepts any one of a set of coded values. Decoding
// a value outside the set rejects the surrounding dispatch candidate
// with a DecodeMismatch instead of failing the whole decode.
type NrcConstParameter struct {
	ParamBase
	DiagCoded   DiagCodedType
	CodedValues []uint64
}

func (p *NrcConstParameter) IsRequired() bool { return false }
func (p *NrcConstParameter) IsSettable() bool { return true }

func (p *NrcConstParameter) staticBitLength() (int, bool) {
	return p.DiagCoded.StaticBitLength()
}

func (p *NrcConstParameter) contains(v uint64) bool {
	for _, c := range p.CodedValues {
		if c == v {
			return true
		}
	}
	return false
}

func (p *NrcConstParameter) encodeInto(st *EncodeState, physical any) error {
	if len(p.CodedValues) == 0 {
		return encodeErrorf("parameter %q has no accepted values", p.ShortName)
	}
	value := p.CodedValues[0]
	if physical != nil {
		v, ok := asUint64(physical)
		if !ok || !p.contains(v) {
			return encodeErrorf("value %v is not in the accepted set of parameter %q",
				physical, p.ShortName)
		}
		value = v
	}
	return p.DiagCoded.EncodeValue(st, value)
}

func (p *NrcConstParameter) decodeFrom(st *DecodeState) (any, error) {
	value, err := p.DiagCoded.DecodeValue(st)
	if err != nil {
		return nil, err
	}
	v, ok := asUint64(value)
	if !ok || !p.contains(v) {
		return nil, decodeMismatchf("value %v of parameter %q is not in its accepted set",
			value, p.ShortName)
	}
	return v, nil
}
