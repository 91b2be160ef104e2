package odx

// DOP is anything a parameter can reference as its type: a simple data
// object property, a nested structure, or an end-of-pdu field. DOPs are
// owned by the schema and referenced, never copied, by parameters.
type DOP interface {
	DOPName() string
	// EncodeValueInto converts a physical value to its wire form and
	// writes it at the state cursor.
	EncodeValueInto(physical any, st *EncodeState) error
	// DecodeValueFrom reads the wire form at the state cursor and
	// converts it back to a physical value.
	DecodeValueFrom(st *DecodeState) (any, error)
	// StaticBitLength returns the fixed bit width when one can be
	// derived without a message.
	StaticBitLength() (int, bool)
}

// DataObjectProperty binds one diag-coded-type to one compu method plus
// an optional physical unit.
type DataObjectProperty struct {
	ShortName string
	DiagCoded DiagCodedType
	Compu     CompuMethod
	// Unit is a display hint (e.g. "km/h"); it does not affect coding.
	Unit string
}

func (d *DataObjectProperty) DOPName() string { return d.ShortName }

func (d *DataObjectProperty) StaticBitLength() (int, bool) {
	return d.DiagCoded.StaticBitLength()
}

// IsValidPhysical reports whether the compu method accepts the value
// for encoding.
func (d *DataObjectProperty) IsValidPhysical(physical any) bool {
	return d.Compu.IsValidPhysical(physical)
}

func (d *DataObjectProperty) EncodeValueInto(physical any, st *EncodeState) error {
	internal, err := d.Compu.PhysicalToInternal(physical)
	if err != nil {
		return err
	}
	return d.DiagCoded.EncodeValue(st, internal)
}

func (d *DataObjectProperty) DecodeValueFrom(st *DecodeState) (any, error) {
	internal, err := d.DiagCoded.DecodeValue(st)
	if err != nil {
		return nil, err
	}
	return d.Compu.InternalToPhysical(internal)
}
