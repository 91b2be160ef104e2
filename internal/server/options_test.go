package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const benchSchemaYAML = `
schema: bench_ecu
dops:
  - {name: uint8, type: uint, bits: 8}
  - name: ident_payload
    type: bytes
    lengthKey: ident_len
structures:
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
services:
  - name: session_control
    request: session_request
    positiveResponses: [session_response]
    negativeResponses: [session_nrc]
  - name: read_identifier
    request: ident_request
`

func writeBenchSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bench.yaml")
	if err := os.WriteFile(path, []byte(benchSchemaYAML), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return path
}

func TestLoadSchemaManifestResolvesPaths(t *testing.T) {
	root := t.TempDir()
	schemaPath := writeBenchSchema(t, root)

	manifest := struct {
		Schemas []SchemaPack `json:"schemas"`
	}{
		Schemas: []SchemaPack{
			{ID: "bench", Name: "Bench ECU", Path: filepath.Base(schemaPath)},
		},
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	manifestPath := filepath.Join(root, "index.json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	packs, err := LoadSchemaManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadSchemaManifest: %v", err)
	}
	if len(packs) != 1 {
		t.Fatalf("packs = %d, want 1", len(packs))
	}
	if !strings.HasPrefix(packs[0].Path, root) {
		t.Errorf("path %s not rooted under manifest dir", packs[0].Path)
	}
	if _, err := os.Stat(packs[0].Path); err != nil {
		t.Errorf("schema stat %s: %v", packs[0].Path, err)
	}
}

func TestLoadSchemaManifestRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := os.WriteFile(path, []byte(`{"schemas": []}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := LoadSchemaManifest(path); err == nil {
		t.Fatalf("empty manifest accepted")
	}
}

func TestBuildSchemaMapDuplicateID(t *testing.T) {
	dir := t.TempDir()
	path := writeBenchSchema(t, dir)
	_, _, err := buildSchemaMap(Options{SchemaPacks: []SchemaPack{
		{ID: "bench", Path: path},
		{ID: "bench", Path: path},
	}})
	if err == nil || !strings.Contains(err.Error(), "duplicate schema") {
		t.Fatalf("err = %v, want duplicate schema error", err)
	}
}

func TestBuildSchemaMapLoadsSchemas(t *testing.T) {
	dir := t.TempDir()
	path := writeBenchSchema(t, dir)
	entries, ids, err := buildSchemaMap(Options{SchemaPacks: []SchemaPack{
		{ID: "bench", Path: path},
	}})
	if err != nil {
		t.Fatalf("buildSchemaMap: %v", err)
	}
	if len(ids) != 1 || ids[0] != "bench" {
		t.Fatalf("ids = %v, want [bench]", ids)
	}
	ls := entries["bench"]
	if ls == nil || ls.schema.Name != "bench_ecu" {
		t.Fatalf("loaded schema = %+v, want bench_ecu", ls)
	}
	if ls.name != "bench_ecu" {
		t.Fatalf("display name = %q, want schema name fallback", ls.name)
	}
}
