package odx

import "math"

// IntervalType describes how a limit bounds an interval.
type IntervalType int

const (
	IntervalClosed IntervalType = iota
	IntervalOpen
	IntervalInfinite
)

// Limit is one bound of a value interval. A nil *Limit means the bound
// is infinite.
type Limit struct {
	Value    float64
	Interval IntervalType
}

// CompliesToLower reports whether v is in range with respect to the
// limit used as a lower bound.
func (l *Limit) CompliesToLower(v float64) bool {
	if l == nil || l.Interval == IntervalInfinite {
		return true
	}
	if l.Interval == IntervalOpen {
		return v > l.Value
	}
	return v >= l.Value
}

// CompliesToUpper reports whether v is in range with respect to the
// limit used as an upper bound.
func (l *Limit) CompliesToUpper(v float64) bool {
	if l == nil || l.Interval == IntervalInfinite {
		return true
	}
	if l.Interval == IntervalOpen {
		return v < l.Value
	}
	return v <= l.Value
}

// CompuMethod converts between the physical representation of a value
// and its internal (raw wire) representation. Implementations are
// stateless given their configuration.
//
// InternalToPhysical must be total over the declared internal domain;
// PhysicalToInternal fails with an EncodeError when the physical value
// lies outside the declared domain.
type CompuMethod interface {
	InternalToPhysical(internal any) (any, error)
	PhysicalToInternal(physical any) (any, error)
	IsValidPhysical(physical any) bool
}

// IdenticalCompuMethod passes values through unchanged.
type IdenticalCompuMethod struct{}

func (IdenticalCompuMethod) InternalToPhysical(internal any) (any, error) { return internal, nil }
func (IdenticalCompuMethod) PhysicalToInternal(physical any) (any, error) { return physical, nil }
func (IdenticalCompuMethod) IsValidPhysical(any) bool                     { return true }

// LinearSegment is one linear conversion segment:
//
//	physical = (offset + factor*internal) / denominator
//
// It is shared by the linear and scale-linear compu methods. The
// physical limits are derived from the internal ones when the segment
// is constructed.
type LinearSegment struct {
	Factor      float64
	Offset      float64
	Denominator float64
	// InverseValue is the internal value used for encoding when the
	// factor is zero (the function is not invertible then).
	InverseValue float64

	InternalLower *Limit
	InternalUpper *Limit

	InternalType DataType
	PhysicalType DataType

	physicalLower *Limit
	physicalUpper *Limit
}

// NewLinearSegment finalizes a segment: it defaults the denominator to 1
// and computes the physical limits from the internal ones. A negative
// factor swaps lower and upper.
func NewLinearSegment(seg LinearSegment) *LinearSegment {
	if seg.Denominator == 0 {
		seg.Denominator = 1
	}
	convert := func(l *Limit) *Limit {
		if l == nil {
			return nil
		}
		return &Limit{
			Value:    (seg.Offset + seg.Factor*l.Value) / seg.Denominator,
			Interval: l.Interval,
		}
	}
	if seg.Factor >= 0 {
		seg.physicalLower = convert(seg.InternalLower)
		seg.physicalUpper = convert(seg.InternalUpper)
	} else {
		seg.physicalLower = convert(seg.InternalUpper)
		seg.physicalUpper = convert(seg.InternalLower)
	}
	return &seg
}

// PhysicalLower returns the derived lower physical limit, if any.
func (s *LinearSegment) PhysicalLower() *Limit { return s.physicalLower }

// PhysicalUpper returns the derived upper physical limit, if any.
func (s *LinearSegment) PhysicalUpper() *Limit { return s.physicalUpper }

func (s *LinearSegment) internalApplies(v float64) bool {
	return s.InternalLower.CompliesToLower(v) && s.InternalUpper.CompliesToUpper(v)
}

func (s *LinearSegment) physicalApplies(v float64) bool {
	return s.physicalLower.CompliesToLower(v) && s.physicalUpper.CompliesToUpper(v)
}

func (s *LinearSegment) internalToPhysical(internal float64) any {
	result := (s.Offset + s.Factor*internal) / s.Denominator
	return numericAs(result, s.PhysicalType)
}

// physicalToInternal inverts the segment. For integral internal types
// the result is rounded to the nearest representable value, ties away
// from zero, and the caller re-validates the rounded value against the
// internal limits.
func (s *LinearSegment) physicalToInternal(physical float64) float64 {
	if math.Abs(s.Factor) < 1e-10 {
		return s.InverseValue
	}
	result := (physical*s.Denominator - s.Offset) / s.Factor
	if s.InternalType == TypeUint || s.InternalType == TypeInt {
		result = math.Round(result)
	}
	return result
}

// numericAs converts a float result to the representation matching the
// declared data type, rounding ties away from zero for integral types.
func numericAs(v float64, t DataType) any {
	switch t {
	case TypeUint:
		return uint64(math.Round(v))
	case TypeInt:
		return int64(math.Round(v))
	}
	return v
}

// LinearCompuMethod converts using a single linear segment.
type LinearCompuMethod struct {
	Segment *LinearSegment
}

func (m *LinearCompuMethod) InternalToPhysical(internal any) (any, error) {
	v, ok := asFloat64(internal)
	if !ok {
		return nil, decodeErrorf("linear compu method requires a numeric internal value, got %v", internal)
	}
	if !m.Segment.internalApplies(v) {
		return nil, decodeErrorf("internal value %v is outside the declared domain", internal)
	}
	return m.Segment.internalToPhysical(v), nil
}

func (m *LinearCompuMethod) PhysicalToInternal(physical any) (any, error) {
	v, ok := asFloat64(physical)
	if !ok {
		return nil, encodeErrorf("linear compu method requires a numeric physical value, got %v", physical)
	}
	if !m.Segment.physicalApplies(v) {
		return nil, encodeErrorf("physical value %v is outside the declared range", physical)
	}
	internal := m.Segment.physicalToInternal(v)
	if !m.Segment.internalApplies(internal) {
		return nil, encodeErrorf("physical value %v rounds to internal value %v outside the declared domain",
			physical, internal)
	}
	return numericAs(internal, m.Segment.InternalType), nil
}

func (m *LinearCompuMethod) IsValidPhysical(physical any) bool {
	v, ok := asFloat64(physical)
	return ok && m.Segment.physicalApplies(v)
}

// ScaleLinearCompuMethod converts using an ordered list of linear
// segments, each valid over a disjoint interval. The unique segment
// whose interval contains the value is used; no match is a failure.
type ScaleLinearCompuMethod struct {
	Segments []*LinearSegment
}

func (m *ScaleLinearCompuMethod) InternalToPhysical(internal any) (any, error) {
	v, ok := asFloat64(internal)
	if !ok {
		return nil, decodeErrorf("scale-linear compu method requires a numeric internal value, got %v", internal)
	}
	for _, seg := range m.Segments {
		if seg.internalApplies(v) {
			return seg.internalToPhysical(v), nil
		}
	}
	return nil, decodeErrorf("no scale-linear segment covers internal value %v", internal)
}

func (m *ScaleLinearCompuMethod) PhysicalToInternal(physical any) (any, error) {
	v, ok := asFloat64(physical)
	if !ok {
		return nil, encodeErrorf("scale-linear compu method requires a numeric physical value, got %v", physical)
	}
	for _, seg := range m.Segments {
		if seg.physicalApplies(v) {
			internal := seg.physicalToInternal(v)
			if !seg.internalApplies(internal) {
				return nil, encodeErrorf("physical value %v rounds to internal value %v outside its segment",
					physical, internal)
			}
			return numericAs(internal, seg.InternalType), nil
		}
	}
	return nil, encodeErrorf("no scale-linear segment covers physical value %v", physical)
}

func (m *ScaleLinearCompuMethod) IsValidPhysical(physical any) bool {
	v, ok := asFloat64(physical)
	if !ok {
		return false
	}
	for _, seg := range m.Segments {
		if seg.physicalApplies(v) {
			return true
		}
	}
	return false
}

// TextTableEntry maps a range of internal values (usually a single one)
// to a text label.
type TextTableEntry struct {
	Lower uint64
	Upper uint64
	Text  string
}

// TextTableCompuMethod is a finite bijection between internal values and
// text labels, with optional default values for unmatched lookups in
// either direction.
type TextTableCompuMethod struct {
	Entries []TextTableEntry

	// DefaultText is returned for internal values matching no entry.
	DefaultText    string
	HasDefaultText bool
	// DefaultInternal is used for labels matching no entry.
	DefaultInternal    uint64
	HasDefaultInternal bool
}

func (m *TextTableCompuMethod) InternalToPhysical(internal any) (any, error) {
	v, ok := asUint64(internal)
	if !ok {
		return nil, decodeErrorf("text table requires an unsigned internal value, got %v", internal)
	}
	for _, e := range m.Entries {
		if v >= e.Lower && v <= e.Upper {
			return e.Text, nil
		}
	}
	if m.HasDefaultText {
		return m.DefaultText, nil
	}
	return nil, decodeErrorf("text table has no entry for internal value %d", v)
}

func (m *TextTableCompuMethod) PhysicalToInternal(physical any) (any, error) {
	label, ok := physical.(string)
	if !ok {
		return nil, encodeErrorf("text table requires a string physical value, got %v", physical)
	}
	for _, e := range m.Entries {
		if e.Text == label {
			return e.Lower, nil
		}
	}
	if m.HasDefaultInternal {
		return m.DefaultInternal, nil
	}
	return nil, encodeErrorf("text table has no entry for label %q", label)
}

func (m *TextTableCompuMethod) IsValidPhysical(physical any) bool {
	label, ok := physical.(string)
	if !ok {
		return false
	}
	for _, e := range m.Entries {
		if e.Text == label {
			return true
		}
	}
	return m.HasDefaultInternal
}

// TabIntpPoint is one (internal, physical) sample of an interpolated
// table.
type TabIntpPoint struct {
	Internal float64
	Physical float64
}

// TabIntpCompuMethod interpolates linearly between sample points. The
// function is continuous and defined over the closed interval between
// the first and last internal points; inversion uses the first matching
// interval.
type TabIntpCompuMethod struct {
	Points       []TabIntpPoint
	InternalType DataType
	PhysicalType DataType
}

func (m *TabIntpCompuMethod) InternalToPhysical(internal any) (any, error) {
	v, ok := asFloat64(internal)
	if !ok {
		return nil, decodeErrorf("tab-intp requires a numeric internal value, got %v", internal)
	}
	for i := 0; i+1 < len(m.Points); i++ {
		a, b := m.Points[i], m.Points[i+1]
		if inSpan(v, a.Internal, b.Internal) {
			return numericAs(lerp(v, a.Internal, b.Internal, a.Physical, b.Physical), m.PhysicalType), nil
		}
	}
	return nil, decodeErrorf("internal value %v is outside the interpolation table", internal)
}

func (m *TabIntpCompuMethod) PhysicalToInternal(physical any) (any, error) {
	v, ok := asFloat64(physical)
	if !ok {
		return nil, encodeErrorf("tab-intp requires a numeric physical value, got %v", physical)
	}
	for i := 0; i+1 < len(m.Points); i++ {
		a, b := m.Points[i], m.Points[i+1]
		if inSpan(v, a.Physical, b.Physical) {
			internal := lerp(v, a.Physical, b.Physical, a.Internal, b.Internal)
			return numericAs(internal, m.InternalType), nil
		}
	}
	return nil, encodeErrorf("physical value %v is outside the interpolation table", physical)
}

func (m *TabIntpCompuMethod) IsValidPhysical(physical any) bool {
	v, ok := asFloat64(physical)
	if !ok {
		return false
	}
	for i := 0; i+1 < len(m.Points); i++ {
		if inSpan(v, m.Points[i].Physical, m.Points[i+1].Physical) {
			return true
		}
	}
	return false
}

func inSpan(v, a, b float64) bool {
	if a > b {
		a, b = b, a
	}
	return v >= a && v <= b
}

func lerp(v, x0, x1, y0, y1 float64) float64 {
	if x0 == x1 {
		return y0
	}
	return y0 + (v-x0)*(y1-y0)/(x1-x0)
}
