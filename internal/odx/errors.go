package odx

import (
	"errors"
	"fmt"
)

// EncodeError reports that a physical value could not be converted into
// its wire representation: a required parameter is missing, a value lies
// outside its declared domain, a table key has no matching case, or an
// explicit byte size is smaller than the encoded content.
type EncodeError struct {
	Msg string
}

func (e *EncodeError) Error() string { return "encode: " + e.Msg }

func encodeErrorf(format string, args ...any) error {
	return &EncodeError{Msg: fmt.Sprintf(format, args...)}
}

// DecodeError reports that a byte buffer could not be interpreted: the
// buffer is too short for a fixed-length field, a table key value is
// unmatched with no default, or dispatch found zero or multiple
// candidates.
type DecodeError struct {
	Msg string
}

func (e *DecodeError) Error() string { return "decode: " + e.Msg }

func decodeErrorf(format string, args ...any) error {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// DecodeMismatch signals that a single dispatch candidate does not apply
// to the message at hand (e.g. an NRC-const parameter's value is not in
// its accepted set). It is swallowed by dispatch and never surfaced to
// callers.
type DecodeMismatch struct {
	Msg string
}

func (e *DecodeMismatch) Error() string { return "mismatch: " + e.Msg }

func decodeMismatchf(format string, args ...any) error {
	return &DecodeMismatch{Msg: fmt.Sprintf(format, args...)}
}

// IsDecodeMismatch reports whether err rejects a single dispatch
// candidate rather than the whole decode.
func IsDecodeMismatch(err error) bool {
	var m *DecodeMismatch
	return errors.As(err, &m)
}

// WarningKind classifies warning-class conditions. These never abort a
// call in permissive mode; strict mode escalates them at the emission
// point.
type WarningKind int

const (
	// WarnOverlap: two parameters wrote to the same bits of the PDU.
	WarnOverlap WarningKind = iota
	// WarnLengthMismatch: the statically computed bit length of a
	// structure disagrees with the actually encoded length.
	WarnLengthMismatch
	// WarnTrailingBytes: decoding consumed fewer bytes than supplied.
	WarnTrailingBytes
	// WarnConstMismatch: a coded-const parameter decoded to a value
	// other than its declared constant.
	WarnConstMismatch
)

func (k WarningKind) String() string {
	switch k {
	case WarnOverlap:
		return "overlap"
	case WarnLengthMismatch:
		return "length-mismatch"
	case WarnTrailingBytes:
		return "trailing-bytes"
	case WarnConstMismatch:
		return "const-mismatch"
	}
	return fmt.Sprintf("WarningKind(%d)", int(k))
}

// Warning is a non-fatal condition reported alongside a best-effort
// result.
type Warning struct {
	Kind    WarningKind
	Message string
}

func (w Warning) String() string {
	return w.Kind.String() + ": " + w.Message
}
