package odx

import (
	"errors"
	"testing"
)

func closed(v float64) *Limit { return &Limit{Value: v, Interval: IntervalClosed} }

func TestLimitBounds(t *testing.T) {
	tests := []struct {
		name  string
		limit *Limit
		value float64
		lower bool
		want  bool
	}{
		{name: "nil is infinite", limit: nil, value: -1e9, lower: true, want: true},
		{name: "closed lower inclusive", limit: closed(3), value: 3, lower: true, want: true},
		{name: "closed lower below", limit: closed(3), value: 2.9, lower: true, want: false},
		{name: "open lower boundary", limit: &Limit{Value: 3, Interval: IntervalOpen}, value: 3, lower: true, want: false},
		{name: "closed upper inclusive", limit: closed(3), value: 3, lower: false, want: true},
		{name: "open upper boundary", limit: &Limit{Value: 3, Interval: IntervalOpen}, value: 3, lower: false, want: false},
		{name: "infinite kind", limit: &Limit{Interval: IntervalInfinite}, value: 1e12, lower: false, want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got bool
			if tc.lower {
				got = tc.limit.CompliesToLower(tc.value)
			} else {
				got = tc.limit.CompliesToUpper(tc.value)
			}
			if got != tc.want {
				t.Fatalf("complies = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLinearHalfFactor(t *testing.T) {
	m := &LinearCompuMethod{Segment: NewLinearSegment(LinearSegment{
		Factor:        0.5,
		InternalLower: closed(0),
		InternalUpper: closed(20),
		InternalType:  TypeUint,
		PhysicalType:  TypeFloat64,
	})}

	internal, err := m.PhysicalToInternal(7.5)
	if err != nil {
		t.Fatalf("PhysicalToInternal(7.5): %v", err)
	}
	if got, _ := asUint64(internal); got != 15 {
		t.Fatalf("internal = %v, want 15", internal)
	}

	if _, err := m.PhysicalToInternal(11.0); err == nil {
		t.Fatalf("PhysicalToInternal(11.0) succeeded, want out-of-range error")
	} else {
		var ee *EncodeError
		if !errors.As(err, &ee) {
			t.Fatalf("error type = %T, want *EncodeError", err)
		}
	}

	phys, err := m.InternalToPhysical(uint64(15))
	if err != nil {
		t.Fatalf("InternalToPhysical(15): %v", err)
	}
	if got, _ := asFloat64(phys); got != 7.5 {
		t.Fatalf("physical = %v, want 7.5", phys)
	}
}

func TestLinearIdempotence(t *testing.T) {
	m := &LinearCompuMethod{Segment: NewLinearSegment(LinearSegment{
		Factor:        2,
		Offset:        -4,
		InternalLower: closed(0),
		InternalUpper: closed(255),
		InternalType:  TypeUint,
		PhysicalType:  TypeFloat64,
	})}
	for r := uint64(0); r <= 255; r += 17 {
		phys, err := m.InternalToPhysical(r)
		if err != nil {
			t.Fatalf("InternalToPhysical(%d): %v", r, err)
		}
		back, err := m.PhysicalToInternal(phys)
		if err != nil {
			t.Fatalf("PhysicalToInternal(%v): %v", phys, err)
		}
		if got, _ := asUint64(back); got != r {
			t.Fatalf("round trip of %d = %v", r, back)
		}
	}
}

func TestLinearNegativeFactorSwapsLimits(t *testing.T) {
	seg := NewLinearSegment(LinearSegment{
		Factor:        -1,
		Offset:        100,
		InternalLower: closed(0),
		InternalUpper: closed(100),
		InternalType:  TypeUint,
		PhysicalType:  TypeFloat64,
	})
	if lo := seg.PhysicalLower(); lo == nil || lo.Value != 0 {
		t.Fatalf("physical lower = %+v, want 0", lo)
	}
	if hi := seg.PhysicalUpper(); hi == nil || hi.Value != 100 {
		t.Fatalf("physical upper = %+v, want 100", hi)
	}
}

func TestScaleLinearSegmentLookup(t *testing.T) {
	m := &ScaleLinearCompuMethod{Segments: []*LinearSegment{
		NewLinearSegment(LinearSegment{
			Factor:        1,
			InternalLower: closed(0),
			InternalUpper: closed(9),
			InternalType:  TypeUint,
			PhysicalType:  TypeFloat64,
		}),
		NewLinearSegment(LinearSegment{
			Factor:        10,
			Offset:        -90,
			InternalLower: closed(10),
			InternalUpper: closed(20),
			InternalType:  TypeUint,
			PhysicalType:  TypeFloat64,
		}),
	}}

	tests := []struct {
		name     string
		internal uint64
		want     float64
	}{
		{name: "first segment", internal: 5, want: 5},
		{name: "second segment start", internal: 10, want: 10},
		{name: "second segment", internal: 15, want: 60},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			phys, err := m.InternalToPhysical(tc.internal)
			if err != nil {
				t.Fatalf("InternalToPhysical(%d): %v", tc.internal, err)
			}
			if got, _ := asFloat64(phys); got != tc.want {
				t.Fatalf("physical = %v, want %v", phys, tc.want)
			}
			back, err := m.PhysicalToInternal(tc.want)
			if err != nil {
				t.Fatalf("PhysicalToInternal(%v): %v", tc.want, err)
			}
			if got, _ := asUint64(back); got != tc.internal {
				t.Fatalf("internal = %v, want %d", back, tc.internal)
			}
		})
	}

	if _, err := m.InternalToPhysical(uint64(21)); err == nil {
		t.Fatalf("InternalToPhysical(21) succeeded, want no-segment error")
	}
	if _, err := m.PhysicalToInternal(200.0); err == nil {
		t.Fatalf("PhysicalToInternal(200) succeeded, want no-segment error")
	}
}

func TestTextTable(t *testing.T) {
	m := &TextTableCompuMethod{Entries: []TextTableEntry{
		{Lower: 0, Upper: 0, Text: "off"},
		{Lower: 1, Upper: 1, Text: "on"},
		{Lower: 2, Upper: 9, Text: "reserved"},
	}}

	phys, err := m.InternalToPhysical(uint64(5))
	if err != nil {
		t.Fatalf("InternalToPhysical(5): %v", err)
	}
	if phys != "reserved" {
		t.Fatalf("physical = %v, want reserved", phys)
	}

	internal, err := m.PhysicalToInternal("on")
	if err != nil {
		t.Fatalf("PhysicalToInternal(on): %v", err)
	}
	if got, _ := asUint64(internal); got != 1 {
		t.Fatalf("internal = %v, want 1", internal)
	}

	if _, err := m.InternalToPhysical(uint64(42)); err == nil {
		t.Fatalf("unmatched internal value succeeded without a default")
	}
	if _, err := m.PhysicalToInternal("banana"); err == nil {
		t.Fatalf("unknown label succeeded without a default")
	}
	if m.IsValidPhysical("banana") {
		t.Fatalf("IsValidPhysical(banana) = true")
	}
}

func TestTextTableDefaults(t *testing.T) {
	m := &TextTableCompuMethod{
		Entries:            []TextTableEntry{{Lower: 1, Upper: 1, Text: "on"}},
		DefaultText:        "unknown",
		HasDefaultText:     true,
		DefaultInternal:    0xFF,
		HasDefaultInternal: true,
	}
	phys, err := m.InternalToPhysical(uint64(42))
	if err != nil {
		t.Fatalf("InternalToPhysical(42): %v", err)
	}
	if phys != "unknown" {
		t.Fatalf("physical = %v, want unknown", phys)
	}
	internal, err := m.PhysicalToInternal("banana")
	if err != nil {
		t.Fatalf("PhysicalToInternal(banana): %v", err)
	}
	if got, _ := asUint64(internal); got != 0xFF {
		t.Fatalf("internal = %v, want 0xFF", internal)
	}
}

func TestTabIntp(t *testing.T) {
	m := &TabIntpCompuMethod{
		Points: []TabIntpPoint{
			{Internal: 0, Physical: -40},
			{Internal: 100, Physical: 60},
			{Internal: 200, Physical: 260},
		},
		InternalType: TypeUint,
		PhysicalType: TypeFloat64,
	}

	tests := []struct {
		name     string
		internal float64
		want     float64
	}{
		{name: "first point", internal: 0, want: -40},
		{name: "first interval", internal: 50, want: 10},
		{name: "second interval", internal: 150, want: 160},
		{name: "last point", internal: 200, want: 260},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			phys, err := m.InternalToPhysical(tc.internal)
			if err != nil {
				t.Fatalf("InternalToPhysical(%v): %v", tc.internal, err)
			}
			if got, _ := asFloat64(phys); got != tc.want {
				t.Fatalf("physical = %v, want %v", phys, tc.want)
			}
		})
	}

	internal, err := m.PhysicalToInternal(10.0)
	if err != nil {
		t.Fatalf("PhysicalToInternal(10): %v", err)
	}
	if got, _ := asUint64(internal); got != 50 {
		t.Fatalf("internal = %v, want 50", internal)
	}

	if _, err := m.InternalToPhysical(201.0); err == nil {
		t.Fatalf("value outside the table succeeded")
	}
}
