package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	path := writeBenchSchema(t, dir)
	srv, err := NewServer(Options{
		StorageDir:  dir,
		SchemaPacks: []SchemaPack{{ID: "bench", Path: path}},
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func postJSON(t *testing.T, h http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSchemasList(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schemas", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var infos []schemaInfo
	if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "bench" {
		t.Fatalf("schemas = %+v, want one entry bench", infos)
	}
	if len(infos[0].Services) != 2 {
		t.Fatalf("services = %v, want 2", infos[0].Services)
	}
}

func TestHandleSchemaUpload(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schemas?id=uploaded", strings.NewReader(benchSchemaYAML))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if _, ok := srv.schemaFor("uploaded"); !ok {
		t.Fatalf("uploaded schema not registered")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/schemas", strings.NewReader("schema: broken\nstructures: ["))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed yaml", rec.Code)
	}
}

func TestHandleServices(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services?schema=bench", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var names []string
	if err := json.NewDecoder(rec.Body).Decode(&names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"read_identifier", "session_control"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("services = %v, want %v", names, want)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/services?schema=nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown schema", rec.Code)
	}
}

func TestHandleEncode(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/encode", map[string]any{
		"schema":  "bench",
		"service": "session_control",
		"values":  map[string]any{"level": 3},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "1003" {
		t.Fatalf("message = %q, want 1003", resp.Message)
	}
}

func TestHandleEncodeLengthKey(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/encode", map[string]any{
		"schema":  "bench",
		"service": "read_identifier",
		"values":  map[string]any{"ident": "hex:AABB"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "2202AABB" {
		t.Fatalf("message = %q, want 2202AABB", resp.Message)
	}
}

func TestHandleEncodeResponse(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/encode", map[string]any{
		"schema":  "bench",
		"service": "session_control",
		"kind":    "positive",
		"values":  map[string]any{"level": 1},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "5001" {
		t.Fatalf("message = %q, want 5001", resp.Message)
	}
}

func TestHandleEncodeMissingRequired(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/encode", map[string]any{
		"schema":  "bench",
		"service": "session_control",
		"values":  map[string]any{},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for missing required parameter", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "level") {
		t.Fatalf("error does not name the missing parameter: %s", rec.Body.String())
	}
}

func TestHandleDecode(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/decode", map[string]any{
		"schema":  "bench",
		"service": "session_control",
		"message": "7F 10 22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp decodeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Structure != "session_nrc" {
		t.Fatalf("structure = %q, want session_nrc", resp.Structure)
	}
	if resp.Values["nrc"] != "34" {
		t.Fatalf("nrc = %q, want 34", resp.Values["nrc"])
	}
}

func TestHandleIdentify(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/identify", map[string]any{
		"schema":  "bench",
		"message": "5003",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp decodeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Service != "session_control" || resp.Structure != "session_response" {
		t.Fatalf("identify = %+v, want session_control/session_response", resp)
	}

	rec = postJSON(t, router, "/identify", map[string]any{
		"schema":  "bench",
		"message": "FFFF",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for unexplained message", rec.Code)
	}
}

func TestHandleBatchDecode(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	body := "1003\n{\"message\":\"7F1012\"}\nZZZZ\n"
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/batch/decode?schema=bench", strings.NewReader(body))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q, want application/x-ndjson", ct)
	}

	var results []batchResult
	var summary struct {
		Type     string `json:"type"`
		Messages int64  `json:"messages"`
		Failures int64  `json:"failures"`
	}
	sc := bufio.NewScanner(rec.Body)
	lines := 0
	for sc.Scan() {
		lines++
		if strings.Contains(sc.Text(), `"type":"summary"`) {
			if err := json.Unmarshal(sc.Bytes(), &summary); err != nil {
				t.Fatalf("summary line: %v", err)
			}
			continue
		}
		var res batchResult
		if err := json.Unmarshal(sc.Bytes(), &res); err != nil {
			t.Fatalf("result line %d: %v", lines, err)
		}
		results = append(results, res)
	}
	if lines != 4 {
		t.Fatalf("lines = %d, want 3 results plus summary", lines)
	}
	if results[0].Structure != "session_request" || results[1].Structure != "session_nrc" {
		t.Fatalf("results = %+v, want session_request then session_nrc", results[:2])
	}
	if results[2].Error == "" {
		t.Fatalf("malformed hex line produced no error")
	}
	if summary.Messages != 2 || summary.Failures != 1 {
		t.Fatalf("summary = %+v, want 2 messages, 1 failure", summary)
	}
}

func TestHandleLintProducesArtifacts(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/lint", map[string]any{"schema": "bench"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Acceptance struct {
			Summary struct {
				Pass bool `json:"pass"`
			} `json:"summary"`
		} `json:"acceptance"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Acceptance.Summary.Pass {
		t.Fatalf("bench schema failed lint")
	}
	if len(resp.Artifacts) != 3 {
		t.Fatalf("artifacts = %d, want diagnostics + json + pdf", len(resp.Artifacts))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artifacts/"+resp.Artifacts[0].ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("artifact download status = %d, want 200", rec.Code)
	}
}

func TestHandleReportProducesArtifacts(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	rec := postJSON(t, router, "/report", map[string]any{
		"schema":   "bench",
		"messages": []string{"1003", "FFFF"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Report struct {
			Summary struct {
				Decoded int `json:"decoded"`
				Failed  int `json:"failed"`
			} `json:"summary"`
			Digest string `json:"digest"`
		} `json:"report"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Report.Summary.Decoded != 1 || resp.Report.Summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 1 decoded, 1 failed", resp.Report.Summary)
	}
	if len(resp.Artifacts) != 3 {
		t.Fatalf("artifacts = %d, want json + pdf + qr", len(resp.Artifacts))
	}

	var png ArtifactRef
	for _, art := range resp.Artifacts {
		if art.ContentType == "image/png" {
			png = art
		}
	}
	if png.ID == "" {
		t.Fatalf("no QR artifact in %+v", resp.Artifacts)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artifacts/"+png.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("QR download status = %d, want 200", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("QR artifact is not a PNG")
	}
}
