package odx

import (
	"bytes"
	"errors"
	"testing"
)

// Shared fixture helpers for the codec tests.

func uintDOP(name string, bits int) *DataObjectProperty {
	return &DataObjectProperty{
		ShortName: name,
		DiagCoded: &StandardLengthType{Type: TypeUint, BitLength: bits},
		Compu:     IdenticalCompuMethod{},
	}
}

func codedConst(name string, value uint64, bits int) *CodedConstParameter {
	return &CodedConstParameter{
		ParamBase:  ParamBase{ShortName: name},
		DiagCoded:  &StandardLengthType{Type: TypeUint, BitLength: bits},
		CodedValue: value,
	}
}

func valueParam(name string, dop DOP) *ValueParameter {
	return &ValueParameter{ParamBase: ParamBase{ShortName: name}, DOP: dop}
}

func intPtr(v int) *int { return &v }

func TestEncodeDecodeSimpleRequest(t *testing.T) {
	request := &Structure{
		ShortName: "session_control_request",
		Params: []Parameter{
			codedConst("sid", 0x10, 8),
			valueParam("level", uintDOP("uint8", 8)),
		},
	}

	coded, warnings, err := request.Encode(ParameterValues{"level": uint64(3)}, nil, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x10, 0x03}) {
		t.Fatalf("coded = % X, want 10 03", coded)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}

	values, consumed, _, err := request.Decode([]byte{0x10, 0x03}, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != 2 {
		t.Fatalf("consumed = %d, want 2", consumed)
	}
	if got, _ := asUint64(values["level"]); got != 3 {
		t.Fatalf("level = %v, want 3", values["level"])
	}
	if got, _ := asUint64(values["sid"]); got != 0x10 {
		t.Fatalf("sid = %v, want 0x10", values["sid"])
	}
}

func TestEncodeMissingRequiredValue(t *testing.T) {
	request := &Structure{
		ShortName: "req",
		Params:    []Parameter{valueParam("level", uintDOP("uint8", 8))},
	}
	_, _, err := request.Encode(ParameterValues{}, nil, Permissive)
	var ee *EncodeError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *EncodeError", err)
	}
}

func TestEncodeUnknownParameterName(t *testing.T) {
	request := &Structure{
		ShortName: "req",
		Params:    []Parameter{codedConst("sid", 0x3E, 8)},
	}
	_, _, err := request.Encode(ParameterValues{"bogus": 1}, nil, Permissive)
	if err == nil {
		t.Fatalf("Encode with unknown parameter name succeeded")
	}
}

func TestLengthKeyGovernedField(t *testing.T) {
	response := &Structure{
		ShortName: "read_data_response",
		Params: []Parameter{
			codedConst("sid", 0x62, 8),
			&LengthKeyParameter{
				ParamBase: ParamBase{ShortName: "len"},
				DOP:       uintDOP("uint8", 8),
			},
			&ValueParameter{
				ParamBase: ParamBase{ShortName: "payload"},
				DOP: &DataObjectProperty{
					ShortName: "bytefield",
					DiagCoded: &ParamLengthInfoType{Type: TypeBytes, LengthKeyName: "len"},
					Compu:     IdenticalCompuMethod{},
				},
			},
		},
	}

	coded, _, err := response.Encode(ParameterValues{"payload": []byte{0xAA, 0xBB}}, nil, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x62, 0x02, 0xAA, 0xBB}) {
		t.Fatalf("coded = % X, want 62 02 AA BB", coded)
	}

	values, consumed, _, err := response.Decode(coded, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed = %d, want 4", consumed)
	}
	if got, _ := asUint64(values["len"]); got != 2 {
		t.Fatalf("len = %v, want 2", values["len"])
	}
	if !bytes.Equal(values["payload"].([]byte), []byte{0xAA, 0xBB}) {
		t.Fatalf("payload = % X, want AA BB", values["payload"])
	}
}

func TestLengthKeyExplicitValue(t *testing.T) {
	response := &Structure{
		ShortName: "resp",
		Params: []Parameter{
			&LengthKeyParameter{
				ParamBase: ParamBase{ShortName: "len"},
				DOP:       uintDOP("uint8", 8),
			},
			&ValueParameter{
				ParamBase: ParamBase{ShortName: "payload"},
				DOP: &DataObjectProperty{
					ShortName: "uint_sized",
					DiagCoded: &ParamLengthInfoType{Type: TypeUint, LengthKeyName: "len"},
					Compu:     IdenticalCompuMethod{},
				},
			},
		},
	}

	// Caller forces a two byte encoding of a value that would fit one.
	coded, _, err := response.Encode(ParameterValues{"len": uint64(2), "payload": uint64(5)}, nil, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x02, 0x00, 0x05}) {
		t.Fatalf("coded = % X, want 02 00 05", coded)
	}
}

func TestExplicitByteSize(t *testing.T) {
	padded := &Structure{
		ShortName: "padded",
		ByteSize:  intPtr(4),
		Params: []Parameter{
			codedConst("sid", 0x50, 8),
			valueParam("level", uintDOP("uint8", 8)),
		},
	}

	coded, _, err := padded.Encode(ParameterValues{"level": uint64(1)}, nil, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x50, 0x01, 0x00, 0x00}) {
		t.Fatalf("coded = % X, want 50 01 00 00", coded)
	}

	values, consumed, _, err := padded.Decode(coded, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed = %d, want 4", consumed)
	}
	if got, _ := asUint64(values["level"]); got != 1 {
		t.Fatalf("level = %v, want 1", values["level"])
	}

	tooSmall := &Structure{
		ShortName: "too_small",
		ByteSize:  intPtr(1),
		Params: []Parameter{
			codedConst("sid", 0x50, 8),
			valueParam("level", uintDOP("uint8", 8)),
		},
	}
	if _, _, err := tooSmall.Encode(ParameterValues{"level": uint64(1)}, nil, Permissive); err == nil {
		t.Fatalf("Encode exceeding the declared byte size succeeded")
	}
}

func TestReservedParameter(t *testing.T) {
	s := &Structure{
		ShortName: "with_reserved",
		Params: []Parameter{
			codedConst("sid", 0x7E, 8),
			&ReservedParameter{ParamBase: ParamBase{ShortName: "rsv"}, BitLength: 8},
			valueParam("level", uintDOP("uint8", 8)),
		},
	}
	coded, _, err := s.Encode(ParameterValues{"level": uint64(9)}, nil, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x7E, 0x00, 0x09}) {
		t.Fatalf("coded = % X, want 7E 00 09", coded)
	}
	values, _, _, err := s.Decode([]byte{0x7E, 0x55, 0x09}, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, present := values["rsv"]; present {
		t.Fatalf("reserved parameter surfaced a value: %v", values["rsv"])
	}
}

func TestMatchingRequestParameter(t *testing.T) {
	response := &Structure{
		ShortName: "echo_response",
		Params: []Parameter{
			codedConst("sid", 0x63, 8),
			&MatchingRequestParameter{
				ParamBase:      ParamBase{ShortName: "did"},
				RequestBytePos: 1,
				ByteLength:     2,
			},
		},
	}

	coded, _, err := response.Encode(nil, []byte{0x23, 0xF1, 0x90}, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x63, 0xF1, 0x90}) {
		t.Fatalf("coded = % X, want 63 F1 90", coded)
	}

	if _, _, err := response.Encode(nil, nil, Permissive); err == nil {
		t.Fatalf("Encode without a triggering request succeeded")
	}

	values, _, _, err := response.Decode(coded, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(values["did"].([]byte), []byte{0xF1, 0x90}) {
		t.Fatalf("did = % X, want F1 90", values["did"])
	}
}

func TestExplicitBytePosition(t *testing.T) {
	s := &Structure{
		ShortName: "positioned",
		Params: []Parameter{
			codedConst("sid", 0x44, 8),
			&ValueParameter{
				ParamBase: ParamBase{ShortName: "tail", BytePos: intPtr(3)},
				DOP:       uintDOP("uint8", 8),
			},
		},
	}
	coded, _, err := s.Encode(ParameterValues{"tail": uint64(0xEE)}, nil, Permissive)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x44, 0x00, 0x00, 0xEE}) {
		t.Fatalf("coded = % X, want 44 00 00 EE", coded)
	}

	values, consumed, _, err := s.Decode(coded, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != 4 {
		t.Fatalf("consumed = %d, want 4", consumed)
	}
	if got, _ := asUint64(values["tail"]); got != 0xEE {
		t.Fatalf("tail = %v, want 0xEE", values["tail"])
	}
}

func TestTrailingBytesWarning(t *testing.T) {
	s := &Structure{
		ShortName: "short",
		Params:    []Parameter{codedConst("sid", 0x10, 8)},
	}

	_, consumed, warnings, err := s.Decode([]byte{0x10, 0xDE, 0xAD}, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("consumed = %d, want 1", consumed)
	}
	found := false
	for _, w := range warnings {
		if w.Kind == WarnTrailingBytes {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v, want a trailing-bytes warning", warnings)
	}

	if _, _, _, err := s.Decode([]byte{0x10, 0xDE, 0xAD}, Strict); err == nil {
		t.Fatalf("strict decode with trailing bytes succeeded")
	}
}

func TestCodedConstMismatchWarning(t *testing.T) {
	s := &Structure{
		ShortName: "const_only",
		Params:    []Parameter{codedConst("sid", 0x10, 8)},
	}

	_, _, warnings, err := s.Decode([]byte{0x11}, Permissive)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarnConstMismatch {
		t.Fatalf("warnings = %v, want one const-mismatch warning", warnings)
	}

	if _, _, _, err := s.Decode([]byte{0x11}, Strict); err == nil {
		t.Fatalf("strict decode with const mismatch succeeded")
	}
}

func TestValidate(t *testing.T) {
	eop := &ValueParameter{
		ParamBase: ParamBase{ShortName: "items"},
		DOP: &EndOfPduField{
			ShortName: "item_list",
			Structure: &Structure{
				ShortName: "item",
				Params:    []Parameter{valueParam("v", uintDOP("uint8", 8))},
			},
		},
	}

	tests := []struct {
		name    string
		s       *Structure
		wantErr bool
	}{
		{
			name: "valid",
			s: &Structure{ShortName: "ok", Params: []Parameter{
				codedConst("sid", 0x10, 8), eop,
			}},
		},
		{
			name: "duplicate names",
			s: &Structure{ShortName: "dup", Params: []Parameter{
				codedConst("sid", 0x10, 8), valueParam("sid", uintDOP("uint8", 8)),
			}},
			wantErr: true,
		},
		{
			name: "end of pdu not last",
			s: &Structure{ShortName: "eop_mid", Params: []Parameter{
				eop, codedConst("sid", 0x10, 8),
			}},
			wantErr: true,
		},
		{
			name: "unknown length key",
			s: &Structure{ShortName: "bad_key", Params: []Parameter{
				&ValueParameter{
					ParamBase: ParamBase{ShortName: "payload"},
					DOP: &DataObjectProperty{
						ShortName: "governed",
						DiagCoded: &ParamLengthInfoType{Type: TypeBytes, LengthKeyName: "nope"},
						Compu:     IdenticalCompuMethod{},
					},
				},
			}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestStaticBitLength(t *testing.T) {
	fixed := &Structure{
		ShortName: "fixed",
		Params: []Parameter{
			codedConst("sid", 0x10, 8),
			valueParam("level", uintDOP("uint8", 8)),
		},
	}
	if n, ok := fixed.StaticBitLength(); !ok || n != 16 {
		t.Fatalf("StaticBitLength() = %d,%v, want 16,true", n, ok)
	}

	variable := &Structure{
		ShortName: "variable",
		Params: []Parameter{
			&ValueParameter{
				ParamBase: ParamBase{ShortName: "payload"},
				DOP: &DataObjectProperty{
					ShortName: "governed",
					DiagCoded: &ParamLengthInfoType{Type: TypeBytes, LengthKeyName: "len"},
					Compu:     IdenticalCompuMethod{},
				},
			},
		},
	}
	if _, ok := variable.StaticBitLength(); ok {
		t.Fatalf("StaticBitLength() reported a fixed width for a governed field")
	}
}
