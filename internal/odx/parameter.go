package odx

import "errors"

// ErrUnsupported is returned by parameter kinds that are part of the
// schema model but have no coding semantics.
var ErrUnsupported = errors.New("unsupported parameter kind")

// Parameter is the closed set of parameter variants that can appear in
// a structure. The interface is sealed: all implementations live in
// this package, so consumers can type-switch exhaustively.
type Parameter interface {
	Name() string
	Semantic() string
	// BytePosition returns the explicit byte position relative to the
	// structure origin, if any. Absence means "place sequentially after
	// the previous parameter".
	BytePosition() (int, bool)
	// BitPosition is the bit offset [0,7] from the least significant
	// bit of the position byte.
	BitPosition() int

	// IsRequired reports whether a caller must supply a value on
	// encode; IsSettable whether it may.
	IsRequired() bool
	IsSettable() bool

	// encodeInto and decodeFrom run with the cursor already positioned
	// by encodeParameter/decodeParameter.
	encodeInto(st *EncodeState, physical any) error
	decodeFrom(st *DecodeState) (any, error)

	// staticBitLength returns the parameter's fixed wire width when one
	// can be derived without a message.
	staticBitLength() (int, bool)
	// isDependent marks parameters whose value is derived from the
	// encoded sizes or choices of other parameters. They emplace a
	// placeholder in the first encoding pass and their real value in
	// the second.
	isDependent() bool

	sealedParameter()
}

// dependentParameter is implemented by the length-key and table-key
// variants. encodeFinal writes the real key value over the placeholder
// emplaced during the first pass.
type dependentParameter interface {
	Parameter
	encodeFinal(st *EncodeState) error
}

// ParamBase carries the fields common to all parameter variants.
type ParamBase struct {
	ShortName string
	Sem       string
	BytePos   *int
	BitPos    int
}

func (b *ParamBase) Name() string     { return b.ShortName }
func (b *ParamBase) Semantic() string { return b.Sem }

func (b *ParamBase) BytePosition() (int, bool) {
	if b.BytePos == nil {
		return 0, false
	}
	return *b.BytePos, true
}

func (b *ParamBase) BitPosition() int { return b.BitPos }

func (b *ParamBase) isDependent() bool { return false }

func (b *ParamBase) sealedParameter() {}

// encodeParameter positions the cursor for p and encodes it. Explicit
// byte positions are relative to the state origin.
func encodeParameter(p Parameter, st *EncodeState, physical any) error {
	if pos, ok := p.BytePosition(); ok {
		st.Cursor = st.Origin + pos
	}
	st.BitCursor = p.BitPosition()
	return p.encodeInto(st, physical)
}

// decodeParameter positions the cursor for p and decodes it.
func decodeParameter(p Parameter, st *DecodeState) (any, error) {
	if pos, ok := p.BytePosition(); ok {
		st.Cursor = st.Origin + pos
	}
	st.BitCursor = p.BitPosition()
	return p.decodeFrom(st)
}
