package odx

import (
	"fmt"
	"time"
)

// ValueParameter is the ordinary settable parameter: its DOP determines
// coding and conversion, and the caller supplies the physical value
// unless a default is declared.
type ValueParameter struct {
	ParamBase
	DOP        DOP
	Default    any
	HasDefault bool
}

func (p *ValueParameter) IsRequired() bool { return !p.HasDefault }
func (p *ValueParameter) IsSettable() bool { return true }

func (p *ValueParameter) staticBitLength() (int, bool) {
	return p.DOP.StaticBitLength()
}

func (p *ValueParameter) encodeInto(st *EncodeState, physical any) error {
	if physical == nil {
		if !p.HasDefault {
			return encodeErrorf("no value provided for required parameter %q", p.ShortName)
		}
		physical = p.Default
	}
	return p.DOP.EncodeValueInto(physical, st)
}

func (p *ValueParameter) decodeFrom(st *DecodeState) (any, error) {
	return p.DOP.DecodeValueFrom(st)
}

// ReservedParameter occupies a fixed number of bits with no semantic
// value. It encodes as zero bits and its decoded content is discarded.
type ReservedParameter struct {
	ParamBase
	BitLength int
}

func (p *ReservedParameter) IsRequired() bool { return false }
func (p *ReservedParameter) IsSettable() bool { return false }

func (p *ReservedParameter) staticBitLength() (int, bool) { return p.BitLength, true }

func (p *ReservedParameter) encodeInto(st *EncodeState, physical any) error {
	if physical != nil {
		return encodeErrorf("reserved parameter %q cannot be set", p.ShortName)
	}
	return st.EmplaceAtomicValue(uint64(0), p.BitLength, TypeUint, true)
}

func (p *ReservedParameter) decodeFrom(st *DecodeState) (any, error) {
	if _, err := st.ExtractAtomicValue(p.BitLength, TypeUint, true); err != nil {
		return nil, err
	}
	return nil, nil
}

// MatchingRequestParameter copies a byte range verbatim from the
// request that triggered the response being coded.
type MatchingRequestParameter struct {
	ParamBase
	// RequestBytePos is the start of the copied range within the
	// triggering request.
	RequestBytePos int
	ByteLength     int
}

func (p *MatchingRequestParameter) IsRequired() bool { return false }
func (p *MatchingRequestParameter) IsSettable() bool { return false }

func (p *MatchingRequestParameter) staticBitLength() (int, bool) {
	return p.ByteLength * 8, true
}

func (p *MatchingRequestParameter) encodeInto(st *EncodeState, physical any) error {
	if st.TriggeringRequest == nil {
		return encodeErrorf("parameter %q requires the triggering request to be present", p.ShortName)
	}
	end := p.RequestBytePos + p.ByteLength
	if end > len(st.TriggeringRequest) {
		return encodeErrorf("triggering request of %d bytes is too short for parameter %q (bytes %d..%d)",
			len(st.TriggeringRequest), p.ShortName, p.RequestBytePos, end)
	}
	return st.EmplaceBytes(st.TriggeringRequest[p.RequestBytePos:end], nil)
}

func (p *MatchingRequestParameter) decodeFrom(st *DecodeState) (any, error) {
	return st.ExtractAtomicValue(p.ByteLength*8, TypeBytes, true)
}

// Predefined system parameter kinds. When no value is supplied for a
// SystemParameter of one of these kinds, the value is filled in from
// the wall clock at encode time.
const (
	SysParamTimestamp = "TIMESTAMP"
	SysParamSecond    = "SECOND"
	SysParamMinute    = "MINUTE"
	SysParamHour      = "HOUR"
	SysParamDay       = "DAY"
	SysParamMonth     = "MONTH"
	SysParamYear      = "YEAR"
	SysParamTesterID  = "TESTERID"
	SysParamUserID    = "USERID"
)

// SystemParameter carries an environment-provided quantity. Callers may
// override it; unsupplied values are auto-filled for the predefined
// kinds.
type SystemParameter struct {
	ParamBase
	DOP      *DataObjectProperty
	SysParam string
}

func (p *SystemParameter) IsRequired() bool { return false }
func (p *SystemParameter) IsSettable() bool { return true }

func (p *SystemParameter) staticBitLength() (int, bool) {
	return p.DOP.StaticBitLength()
}

func (p *SystemParameter) autoValue(now time.Time) (any, error) {
	switch p.SysParam {
	case SysParamTimestamp:
		return uint64(now.Unix()), nil
	case SysParamSecond:
		return uint64(now.Second()), nil
	case SysParamMinute:
		return uint64(now.Minute()), nil
	case SysParamHour:
		return uint64(now.Hour()), nil
	case SysParamDay:
		return uint64(now.Day()), nil
	case SysParamMonth:
		return uint64(now.Month()), nil
	case SysParamYear:
		return uint64(now.Year()), nil
	case SysParamTesterID, SysParamUserID:
		// Not derivable from the environment; encoded as zero when the
		// caller does not supply a value.
		return uint64(0), nil
	}
	return nil, encodeErrorf("no value provided for system parameter %q of kind %q",
		p.ShortName, p.SysParam)
}

func (p *SystemParameter) encodeInto(st *EncodeState, physical any) error {
	if physical == nil {
		v, err := p.autoValue(time.Now())
		if err != nil {
			return err
		}
		physical = v
	}
	return p.DOP.EncodeValueInto(physical, st)
}

func (p *SystemParameter) decodeFrom(st *DecodeState) (any, error) {
	return p.DOP.DecodeValueFrom(st)
}

// DynamicParameter is part of the schema model but carries no coding
// semantics.
type DynamicParameter struct {
	ParamBase
}

func (p *DynamicParameter) IsRequired() bool { return false }
func (p *DynamicParameter) IsSettable() bool { return false }

func (p *DynamicParameter) staticBitLength() (int, bool) { return 0, false }

func (p *DynamicParameter) encodeInto(st *EncodeState, physical any) error {
	return fmt.Errorf("dynamic parameter %q: %w", p.ShortName, ErrUnsupported)
}

func (p *DynamicParameter) decodeFrom(st *DecodeState) (any, error) {
	return nil, fmt.Errorf("dynamic parameter %q: %w", p.ShortName, ErrUnsupported)
}
