// Package server exposes the codec over HTTP: schema registration,
// encode/decode/dispatch endpoints, NDJSON batch decoding and an
// artifact store for generated reports.
package server

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/udsgate/internal/common"
	"example.com/udsgate/internal/odx"
	"example.com/udsgate/internal/report"
	"example.com/udsgate/internal/schema"
	"example.com/udsgate/internal/verify"
)

// Server coordinates HTTP handlers, the registered schemas and the
// temporary artifacts produced by lint and report requests.
type Server struct {
	mu      sync.RWMutex
	schemas map[string]*loadedSchema
	ids     []string

	artifacts   *ArtifactStore
	workDir     string
	uploadsDir  string
	rulePack    verify.RulePack
	concurrency int
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "udsd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	schemas, ids, err := buildSchemaMap(opts)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	rulePack := verify.DefaultRulePack()
	if strings.TrimSpace(opts.RulePackPath) != "" {
		rulePack, err = verify.LoadRulePack(opts.RulePackPath)
		if err != nil {
			os.RemoveAll(workDir)
			return nil, fmt.Errorf("load rule pack: %w", err)
		}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	s := &Server{
		schemas:     schemas,
		ids:         ids,
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		rulePack:    rulePack,
		concurrency: concurrency,
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) schemaFor(id string) (*loadedSchema, bool) {
	s.mu.RLock()
	ls, ok := s.schemas[id]
	s.mu.RUnlock()
	return ls, ok
}

func (s *Server) registerSchema(ls *loadedSchema) {
	s.mu.Lock()
	if _, exists := s.schemas[ls.id]; !exists {
		s.ids = append(s.ids, ls.id)
		sort.Strings(s.ids)
	}
	s.schemas[ls.id] = ls
	s.mu.Unlock()
}

// lintSchema runs the configured rule pack over one schema.
func (s *Server) lintSchema(ls *loadedSchema) (*verify.Engine, []verify.Diagnostic, error) {
	engine := verify.NewEngine(s.rulePack)
	engine.RegisterBuiltins()
	diags, err := engine.Eval(&verify.Context{SchemaFile: ls.path, Schema: ls.schema})
	return engine, diags, err
}

type schemaInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Services []string `json:"services"`
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		infos := make([]schemaInfo, 0, len(s.ids))
		for _, id := range s.ids {
			ls := s.schemas[id]
			infos = append(infos, schemaInfo{ID: id, Name: ls.name, Services: ls.schema.ServiceNames()})
		}
		s.mu.RUnlock()
		writeJSON(w, http.StatusOK, infos)
	case http.MethodPost:
		s.handleSchemaUpload(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSchemaUpload ingests a YAML schema body: it must parse, and
// lint errors reject the upload.
func (s *Server) handleSchemaUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<20))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}
	parsed, err := schema.Parse(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("parse schema: %v", err), http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		id = parsed.Name
	}
	path := filepath.Join(s.uploadsDir, id+".yaml")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		http.Error(w, fmt.Sprintf("store schema: %v", err), http.StatusInternalServerError)
		return
	}
	ls := &loadedSchema{id: id, name: parsed.Name, path: path, schema: parsed}
	engine, _, err := s.lintSchema(ls)
	if err != nil {
		http.Error(w, fmt.Sprintf("lint: %v", err), http.StatusInternalServerError)
		return
	}
	rep := engine.MakeAcceptance()
	if !rep.Summary.Pass {
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			Error      string                  `json:"error"`
			Acceptance verify.AcceptanceReport `json:"acceptance"`
		}{Error: "schema rejected by lint", Acceptance: rep})
		return
	}
	s.registerSchema(ls)
	writeJSON(w, http.StatusCreated, struct {
		Schema     schemaInfo              `json:"schema"`
		Acceptance verify.AcceptanceReport `json:"acceptance"`
	}{
		Schema:     schemaInfo{ID: id, Name: parsed.Name, Services: parsed.ServiceNames()},
		Acceptance: rep,
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ls, ok := s.schemaFor(r.URL.Query().Get("schema"))
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ls.schema.ServiceNames())
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Schema            string         `json:"schema"`
		Service           string         `json:"service"`
		Kind              string         `json:"kind"`
		Response          string         `json:"response"`
		Values            map[string]any `json:"values"`
		TriggeringRequest string         `json:"triggeringRequest"`
		Strict            bool           `json:"strict"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	ls, ok := s.schemaFor(req.Schema)
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	svc := ls.schema.Service(req.Service)
	if svc == nil {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}
	values := normalizeValues(req.Values)
	mode := modeOf(req.Strict)

	var coded []byte
	var warnings []odx.Warning
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case "", "request":
		coded, warnings, err = svc.EncodeRequest(values, mode)
	case "positive", "negative", "response":
		resp := responseShape(svc, req.Kind, req.Response)
		if resp == nil {
			http.Error(w, "unknown response structure", http.StatusNotFound)
			return
		}
		var trigger []byte
		if req.TriggeringRequest != "" {
			if trigger, err = parseHex(req.TriggeringRequest); err != nil {
				http.Error(w, fmt.Sprintf("triggering request: %v", err), http.StatusBadRequest)
				return
			}
		}
		coded, warnings, err = svc.EncodeResponse(resp, values, trigger, mode)
	default:
		http.Error(w, fmt.Sprintf("unknown kind %q", req.Kind), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message  string   `json:"message"`
		Warnings []string `json:"warnings,omitempty"`
	}{
		Message:  strings.ToUpper(hex.EncodeToString(coded)),
		Warnings: warningStrings(warnings),
	})
}

// responseShape resolves the response structure for an encode request:
// by name when given, otherwise the sole shape of the requested kind.
func responseShape(svc *odx.Service, kind, name string) *odx.Structure {
	if name != "" {
		return svc.ResponseByName(name)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "positive":
		if len(svc.PositiveResponses) == 1 {
			return svc.PositiveResponses[0]
		}
	case "negative":
		if len(svc.NegativeResponses) == 1 {
			return svc.NegativeResponses[0]
		}
	}
	return nil
}

type decodeResponse struct {
	Service   string            `json:"service"`
	Structure string            `json:"structure"`
	Values    map[string]string `json:"values"`
	Warnings  []string          `json:"warnings,omitempty"`
}

func toDecodeResponse(m *odx.Message) decodeResponse {
	values := make(map[string]string, len(m.Values))
	for name, v := range m.Values {
		values[name] = report.FormatValue(v)
	}
	return decodeResponse{
		Service:   m.Service.ShortName,
		Structure: m.Structure.ShortName,
		Values:    values,
		Warnings:  warningStrings(m.Warnings),
	}
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Schema  string `json:"schema"`
		Service string `json:"service"`
		Message string `json:"message"`
		Strict  bool   `json:"strict"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	ls, ok := s.schemaFor(req.Schema)
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	svc := ls.schema.Service(req.Service)
	if svc == nil {
		http.Error(w, "unknown service", http.StatusNotFound)
		return
	}
	coded, err := parseHex(req.Message)
	if err != nil {
		http.Error(w, fmt.Sprintf("message: %v", err), http.StatusBadRequest)
		return
	}
	m, err := svc.DecodeMessage(coded, modeOf(req.Strict))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, toDecodeResponse(m))
}

// handleIdentify dispatches a message across every service of the
// schema and applies the exactly-one-match rule over the union.
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Schema  string `json:"schema"`
		Message string `json:"message"`
		Strict  bool   `json:"strict"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	ls, ok := s.schemaFor(req.Schema)
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	coded, err := parseHex(req.Message)
	if err != nil {
		http.Error(w, fmt.Sprintf("message: %v", err), http.StatusBadRequest)
		return
	}
	m, err := odx.DecodeAny(ls.schema.Services, coded, modeOf(req.Strict))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, toDecodeResponse(m))
}

type batchResult struct {
	Index     int               `json:"index"`
	Message   string            `json:"message"`
	Service   string            `json:"service,omitempty"`
	Structure string            `json:"structure,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// handleBatchDecode reads NDJSON lines of hex messages and streams one
// NDJSON result per line, in input order, plus a final summary record.
// Lines are either bare hex strings or {"message": "..."} objects.
func (s *Server) handleBatchDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ls, ok := s.schemaFor(r.URL.Query().Get("schema"))
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	mode := modeOf(r.URL.Query().Get("strict") == "true")

	var lines []string
	sc := bufio.NewScanner(r.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return
	}

	metrics := common.NewMetrics()
	metrics.Start()
	results := make([]batchResult, len(lines))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, line := range lines {
		i, line := i, line
		g.Go(func() error {
			res := batchResult{Index: i, Message: line}
			raw := line
			if strings.HasPrefix(line, "{") {
				var obj struct {
					Message string `json:"message"`
				}
				if err := json.Unmarshal([]byte(line), &obj); err != nil {
					res.Error = fmt.Sprintf("invalid json: %v", err)
					results[i] = res
					metrics.IncFailure()
					return nil
				}
				raw = obj.Message
			}
			coded, err := parseHex(raw)
			if err != nil {
				res.Error = err.Error()
				results[i] = res
				metrics.IncFailure()
				return nil
			}
			res.Message = strings.ToUpper(hex.EncodeToString(coded))
			m, err := odx.DecodeAny(ls.schema.Services, coded, mode)
			if err != nil {
				res.Error = err.Error()
				metrics.IncFailure()
			} else {
				dr := toDecodeResponse(m)
				res.Service = dr.Service
				res.Structure = dr.Structure
				res.Values = dr.Values
				res.Warnings = dr.Warnings
				metrics.AddMessage(int64(len(coded)))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.Stop()

	w.Header().Set("Content-Type", "application/x-ndjson")
	writer := NewNDJSONWriter(w)
	for _, res := range results {
		if err := writer.WriteObject(res); err != nil {
			return
		}
	}
	snap := metrics.Snapshot()
	_ = writer.WriteObject(struct {
		Type     string  `json:"type"`
		Messages int64   `json:"messages"`
		Failures int64   `json:"failures"`
		Bytes    int64   `json:"bytes"`
		Rate     float64 `json:"messagesPerSecond"`
	}{
		Type:     "summary",
		Messages: snap.Messages,
		Failures: snap.Failures,
		Bytes:    snap.Bytes,
		Rate:     snap.MessagesPerSecond(),
	})
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Schema string `json:"schema"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	ls, ok := s.schemaFor(req.Schema)
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	engine, diags, err := s.lintSchema(ls)
	if err != nil {
		http.Error(w, fmt.Sprintf("eval: %v", err), http.StatusInternalServerError)
		return
	}
	diagPath, err := s.tempPath("diagnostics-*.ndjson")
	if err != nil {
		http.Error(w, fmt.Sprintf("diagnostics temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		http.Error(w, fmt.Sprintf("write diagnostics: %v", err), http.StatusInternalServerError)
		return
	}
	rep := engine.MakeAcceptance()
	accPath, err := s.tempPath("acceptance-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("acceptance temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		http.Error(w, fmt.Sprintf("write acceptance: %v", err), http.StatusInternalServerError)
		return
	}
	pdfPath, err := s.tempPath("acceptance-*.pdf")
	if err != nil {
		http.Error(w, fmt.Sprintf("acceptance pdf temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveAcceptancePDF(rep, ls.schema.Name, pdfPath); err != nil {
		http.Error(w, fmt.Sprintf("write acceptance: %v", err), http.StatusInternalServerError)
		return
	}
	diagArt, err := s.addArtifact(diagPath, "diagnostics.ndjson", "application/x-ndjson", "diagnostics")
	if err != nil {
		http.Error(w, fmt.Sprintf("register diagnostics: %v", err), http.StatusInternalServerError)
		return
	}
	accArt, err := s.addArtifact(accPath, "acceptance_report.json", "application/json", "acceptance")
	if err != nil {
		http.Error(w, fmt.Sprintf("register acceptance: %v", err), http.StatusInternalServerError)
		return
	}
	pdfArt, err := s.addArtifact(pdfPath, "acceptance_report.pdf", "application/pdf", "acceptance")
	if err != nil {
		http.Error(w, fmt.Sprintf("register acceptance: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Acceptance  verify.AcceptanceReport `json:"acceptance"`
		Diagnostics int                     `json:"diagnostics"`
		Artifacts   []ArtifactRef           `json:"artifacts"`
	}{
		Acceptance:  rep,
		Diagnostics: len(diags),
		Artifacts:   []ArtifactRef{toRef(diagArt), toRef(accArt), toRef(pdfArt)},
	})
}

// handleReport decodes a message list and produces JSON, PDF and QR
// artifacts for the session.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Schema   string   `json:"schema"`
		Messages []string `json:"messages"`
		Strict   bool     `json:"strict"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	ls, ok := s.schemaFor(req.Schema)
	if !ok {
		http.Error(w, "unknown schema", http.StatusNotFound)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages required", http.StatusBadRequest)
		return
	}
	messages := make([][]byte, 0, len(req.Messages))
	for i, raw := range req.Messages {
		coded, err := parseHex(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("message %d: %v", i, err), http.StatusBadRequest)
			return
		}
		messages = append(messages, coded)
	}
	rep := report.BuildSession(ls.schema, messages, modeOf(req.Strict))

	jsonPath, err := s.tempPath("session-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("session temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveSessionJSON(rep, jsonPath); err != nil {
		http.Error(w, fmt.Sprintf("write session: %v", err), http.StatusInternalServerError)
		return
	}
	pdfPath, err := s.tempPath("session-*.pdf")
	if err != nil {
		http.Error(w, fmt.Sprintf("session pdf temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := report.SaveSessionPDF(rep, pdfPath); err != nil {
		http.Error(w, fmt.Sprintf("write session pdf: %v", err), http.StatusInternalServerError)
		return
	}
	qrBytes, err := report.SessionDigestQR(rep.Digest, 256)
	if err != nil {
		http.Error(w, fmt.Sprintf("session qr: %v", err), http.StatusInternalServerError)
		return
	}
	qrPath, err := s.tempPath("session-*.png")
	if err != nil {
		http.Error(w, fmt.Sprintf("session qr temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := os.WriteFile(qrPath, qrBytes, 0o644); err != nil {
		http.Error(w, fmt.Sprintf("write session qr: %v", err), http.StatusInternalServerError)
		return
	}
	jsonArt, err := s.addArtifact(jsonPath, "session_report.json", "application/json", "session")
	if err != nil {
		http.Error(w, fmt.Sprintf("register session: %v", err), http.StatusInternalServerError)
		return
	}
	pdfArt, err := s.addArtifact(pdfPath, "session_report.pdf", "application/pdf", "session")
	if err != nil {
		http.Error(w, fmt.Sprintf("register session pdf: %v", err), http.StatusInternalServerError)
		return
	}
	qrArt, err := s.addArtifact(qrPath, "session_digest.png", "image/png", "session")
	if err != nil {
		http.Error(w, fmt.Sprintf("register session qr: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Report    report.SessionReport `json:"report"`
		Artifacts []ArtifactRef        `json:"artifacts"`
	}{
		Report:    rep,
		Artifacts: []ArtifactRef{toRef(jsonArt), toRef(pdfArt), toRef(qrArt)},
	})
}

func (s *Server) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.listArtifacts())
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	disposition := fmt.Sprintf("attachment; filename=\"%s\"", art.Name)
	w.Header().Set("Content-Disposition", disposition)
	io.Copy(w, f)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	id := randomID()
	art := Artifact{
		ID:          id,
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[id] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func warningStrings(warnings []odx.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.String()
	}
	return out
}

func modeOf(strict bool) odx.Mode {
	if strict {
		return odx.Strict
	}
	return odx.Permissive
}

// parseHex decodes a hex message, tolerating spaces and a 0x prefix.
func parseHex(s string) ([]byte, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	cleaned = strings.TrimPrefix(cleaned, "0x")
	cleaned = strings.TrimPrefix(cleaned, "0X")
	if cleaned == "" {
		return nil, errors.New("empty hex string")
	}
	return hex.DecodeString(cleaned)
}

// normalizeValues adapts JSON-decoded parameter values to the forms the
// codec expects: "hex:" strings become byte slices, {"row","value"}
// objects become table-struct values, and homogeneous object lists
// become repetition lists.
func normalizeValues(values map[string]any) odx.ParameterValues {
	out := make(odx.ParameterValues, len(values))
	for name, v := range values {
		out[name] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch tv := v.(type) {
	case string:
		if raw, found := strings.CutPrefix(tv, "hex:"); found {
			if b, err := parseHex(raw); err == nil {
				return b
			}
		}
		return tv
	case map[string]any:
		if row, ok := tv["row"].(string); ok && len(tv) == 2 {
			if inner, ok := tv["value"]; ok {
				return odx.TableStructValue{Row: row, Value: normalizeValue(inner)}
			}
		}
		return normalizeValues(tv)
	case []any:
		items := make([]odx.ParameterValues, 0, len(tv))
		for _, item := range tv {
			m, ok := normalizeValue(item).(odx.ParameterValues)
			if !ok {
				return tv
			}
			items = append(items, m)
		}
		return items
	default:
		return v
	}
}

func guessContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".ndjson":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}
