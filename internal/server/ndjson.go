package server

import (
	"encoding/json"
	"net/http"
	"sync"
)

// NDJSONWriter streams newline-delimited JSON records over an HTTP
// response, flushing after every record so clients see batch results
// as they are produced.
type NDJSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	fl  http.Flusher
}

func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	fl, _ := w.(http.Flusher)
	return &NDJSONWriter{enc: json.NewEncoder(w), fl: fl}
}

// WriteObject appends one record. json.Encoder terminates every record
// with a newline, which is exactly the NDJSON framing.
func (n *NDJSONWriter) WriteObject(v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enc.Encode(v); err != nil {
		return err
	}
	if n.fl != nil {
		n.fl.Flush()
	}
	return nil
}
