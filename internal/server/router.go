package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/schemas", s.handleSchemas)
	mux.HandleFunc("/services", s.handleServices)
	mux.HandleFunc("/encode", s.handleEncode)
	mux.HandleFunc("/decode", s.handleDecode)
	mux.HandleFunc("/identify", s.handleIdentify)
	mux.HandleFunc("/batch/decode", s.handleBatchDecode)
	mux.HandleFunc("/lint", s.handleLint)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/artifacts", s.handleArtifactList)
	mux.HandleFunc("/artifacts/", s.handleArtifactDownload)
	return mux
}
