package schema

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/udsgate/internal/odx"
)

const engineSchema = `
schema: engine_ecu
dops:
  - name: uint8
    type: uint
    bits: 8
  - name: uint16
    type: uint
    bits: 16
  - name: engine_speed
    type: uint
    bits: 16
    unit: rpm
    compu:
      kind: linear
      factor: 0.25
      internalMin: 0
      internalMax: 65535
  - name: gear
    type: uint
    bits: 8
    compu:
      kind: texttable
      entries:
        - {value: 0, text: neutral}
        - {value: 1, text: drive}
        - {value: 2, text: reverse}
      defaultText: unknown
  - name: vin_chars
    type: string
    minLength: 1
    maxLength: 17
    termination: zero
  - name: ident_payload
    type: bytes
    lengthKey: ident_len
tables:
  - name: report_types
    keyDop: uint8
    rows:
      - {name: by_status_mask, key: 2, structure: status_mask_record}
      - {name: by_severity, key: 8, structure: severity_record}
structures:
  - name: status_mask_record
    params:
      - {name: mask, kind: value, dop: uint8}
  - name: severity_record
    params:
      - {name: severity_mask, kind: value, dop: uint8}
      - {name: status_mask, kind: value, dop: uint8}
  - name: dtc_record
    params:
      - {name: dtc, kind: value, dop: uint16}
      - {name: status, kind: value, dop: uint8}
  - name: session_request
    params:
      - {name: sid, kind: codedconst, codedValue: 0x10, bits: 8}
      - {name: level, kind: value, dop: uint8}
  - name: session_response
    params:
      - {name: sid, kind: codedconst, codedValue: 0x50, bits: 8}
      - {name: level, kind: value, dop: uint8}
  - name: session_nrc
    params:
      - {name: marker, kind: codedconst, codedValue: 0x7F, bits: 8}
      - {name: sid, kind: codedconst, codedValue: 0x10, bits: 8}
      - {name: nrc, kind: nrcconst, codedValues: [0x12, 0x22]}
  - name: ident_request
    params:
      - {name: sid, kind: codedconst, codedValue: 0x22, bits: 8}
      - {name: ident_len, kind: lengthkey, dop: uint8}
      - {name: ident, kind: value, dop: ident_payload}
  - name: dtc_request
    params:
      - {name: sid, kind: codedconst, codedValue: 0x19, bits: 8}
      - {name: report_type, kind: tablekey, table: report_types}
      - {name: report, kind: tablestruct, table: report_types, tableKey: report_type}
  - name: dtc_response
    params:
      - {name: sid, kind: codedconst, codedValue: 0x59, bits: 8}
      - {name: records, kind: list, structure: dtc_record}
services:
  - name: session_control
    request: session_request
    positiveResponses: [session_response]
    negativeResponses: [session_nrc]
  - name: read_identifier
    request: ident_request
  - name: read_dtcs
    request: dtc_request
    positiveResponses: [dtc_response]
`

func parseEngineSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Parse([]byte(engineSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(engineSchema), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "engine_ecu" {
		t.Fatalf("name = %q, want engine_ecu", s.Name)
	}
	if len(s.Services) != 3 {
		t.Fatalf("services = %d, want 3", len(s.Services))
	}
	want := []string{"read_dtcs", "read_identifier", "session_control"}
	got := s.ServiceNames()
	if len(got) != len(want) {
		t.Fatalf("ServiceNames() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ServiceNames() = %v, want %v", got, want)
		}
	}
}

func TestResolvedSessionService(t *testing.T) {
	s := parseEngineSchema(t)
	svc := s.Service("session_control")
	if svc == nil {
		t.Fatalf("session_control not resolved")
	}

	coded, _, err := svc.EncodeRequest(odx.ParameterValues{"level": uint64(3)}, odx.Permissive)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x10, 0x03}) {
		t.Fatalf("coded = % X, want 10 03", coded)
	}

	m, err := svc.DecodeMessage([]byte{0x7F, 0x10, 0x22}, odx.Permissive)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if m.Structure.ShortName != "session_nrc" {
		t.Fatalf("structure = %q, want session_nrc", m.Structure.ShortName)
	}
}

func TestResolvedLengthKeyService(t *testing.T) {
	s := parseEngineSchema(t)
	svc := s.Service("read_identifier")

	coded, _, err := svc.EncodeRequest(odx.ParameterValues{"ident": []byte{0xAA, 0xBB}}, odx.Permissive)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x22, 0x02, 0xAA, 0xBB}) {
		t.Fatalf("coded = % X, want 22 02 AA BB", coded)
	}
}

func TestResolvedTableService(t *testing.T) {
	s := parseEngineSchema(t)
	svc := s.Service("read_dtcs")

	coded, _, err := svc.EncodeRequest(odx.ParameterValues{
		"report": odx.TableStructValue{
			Row:   "by_severity",
			Value: odx.ParameterValues{"severity_mask": uint64(0x40), "status_mask": uint64(0x01)},
		},
	}, odx.Permissive)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if !bytes.Equal(coded, []byte{0x19, 0x08, 0x40, 0x01}) {
		t.Fatalf("coded = % X, want 19 08 40 01", coded)
	}

	m, err := svc.DecodeMessage([]byte{0x59, 0x01, 0x02, 0x2F}, odx.Permissive)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	records := m.Values["records"].([]odx.ParameterValues)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got, _ := records[0]["dtc"].(uint64); got != 0x0102 {
		t.Fatalf("dtc = %v, want 0x0102", records[0]["dtc"])
	}
}

func TestLinearDOPConversion(t *testing.T) {
	s := parseEngineSchema(t)
	dop := s.DOPs["engine_speed"]
	if dop == nil {
		t.Fatalf("engine_speed dop not resolved")
	}
	if dop.Unit != "rpm" {
		t.Fatalf("unit = %q, want rpm", dop.Unit)
	}
	phys, err := dop.Compu.InternalToPhysical(uint64(1000))
	if err != nil {
		t.Fatalf("InternalToPhysical: %v", err)
	}
	if phys != 250.0 {
		t.Fatalf("physical = %v, want 250", phys)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no name",
			yaml: "dops: []\n",
			want: "no name",
		},
		{
			name: "no services",
			yaml: "schema: x\nstructures:\n  - name: s\n    params: []\n",
			want: "no services",
		},
		{
			name: "unknown dop reference",
			yaml: `
schema: x
structures:
  - name: req
    params:
      - {name: v, kind: value, dop: nope}
services:
  - {name: svc, request: req}
`,
			want: `unknown dop "nope"`,
		},
		{
			name: "duplicate structure",
			yaml: `
schema: x
structures:
  - {name: req, params: []}
  - {name: req, params: []}
services:
  - {name: svc, request: req}
`,
			want: "duplicate structure",
		},
		{
			name: "end of pdu not last",
			yaml: `
schema: x
dops:
  - {name: uint8, type: uint, bits: 8}
structures:
  - name: item
    params:
      - {name: v, kind: value, dop: uint8}
  - name: req
    params:
      - {name: items, kind: list, structure: item}
      - {name: after, kind: value, dop: uint8}
services:
  - {name: svc, request: req}
`,
			want: "must be last",
		},
		{
			name: "linear factor zero without inverse",
			yaml: `
schema: x
dops:
  - name: bad
    type: uint
    bits: 8
    compu: {kind: linear, factor: 0}
structures:
  - name: req
    params:
      - {name: v, kind: value, dop: bad}
services:
  - {name: svc, request: req}
`,
			want: "inverseValue",
		},
		{
			name: "unknown service request",
			yaml: `
schema: x
services:
  - {name: svc, request: nope}
`,
			want: "unknown request structure",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("Parse succeeded, want error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want it to contain %q", err, tc.want)
			}
		})
	}
}

func TestMinMaxStringDOP(t *testing.T) {
	s := parseEngineSchema(t)
	dop := s.DOPs["vin_chars"]
	mm, ok := dop.DiagCoded.(*odx.MinMaxLengthType)
	if !ok {
		t.Fatalf("vin_chars diag coded type = %T, want *MinMaxLengthType", dop.DiagCoded)
	}
	if mm.MinLength != 1 || mm.MaxLength != 17 || mm.Termination != odx.TerminateZero {
		t.Fatalf("minmax = %+v, want 1..17 zero-terminated", mm)
	}
}
