// Package report renders decode sessions and lint results into the
// artifacts the daemon and CLI hand out: JSON documents, PDF summaries
// and a QR code of the session digest.
package report

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"example.com/udsgate/internal/common"
	"example.com/udsgate/internal/odx"
	"example.com/udsgate/internal/schema"
	"example.com/udsgate/internal/verify"
)

// DecodedMessage is the outcome for one PDU of a decode session.
type DecodedMessage struct {
	Coded     string            `json:"coded"`
	Service   string            `json:"service,omitempty"`
	Structure string            `json:"structure,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type SessionSummary struct {
	Messages int  `json:"messages"`
	Decoded  int  `json:"decoded"`
	Failed   int  `json:"failed"`
	Warnings int  `json:"warnings"`
	Pass     bool `json:"pass"`
}

// SessionReport is one decode run of a message list against a schema.
// The digest is the sha256 over the concatenated coded messages in
// order, so two sessions over the same input share a digest.
type SessionReport struct {
	Schema      string           `json:"schema"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Digest      string           `json:"digest"`
	Summary     SessionSummary   `json:"summary"`
	Messages    []DecodedMessage `json:"messages"`
}

// BuildSession dispatches every message across all services of the
// schema and collects the per-message outcome. Decode failures are
// recorded, not propagated; the session passes when every message
// decoded.
func BuildSession(s *schema.Schema, messages [][]byte, mode odx.Mode) SessionReport {
	rep := SessionReport{
		Schema:      s.Name,
		GeneratedAt: time.Now().UTC(),
		Messages:    make([]DecodedMessage, 0, len(messages)),
	}
	var all []byte
	for _, coded := range messages {
		all = append(all, coded...)
		entry := DecodedMessage{Coded: strings.ToUpper(hex.EncodeToString(coded))}
		m, err := odx.DecodeAny(s.Services, coded, mode)
		if err != nil {
			entry.Error = err.Error()
			rep.Summary.Failed++
		} else {
			entry.Service = m.Service.ShortName
			entry.Structure = m.Structure.ShortName
			entry.Values = formatValues(m.Values)
			for _, w := range m.Warnings {
				entry.Warnings = append(entry.Warnings, w.String())
			}
			rep.Summary.Decoded++
			rep.Summary.Warnings += len(m.Warnings)
		}
		rep.Messages = append(rep.Messages, entry)
	}
	rep.Summary.Messages = len(messages)
	rep.Summary.Pass = rep.Summary.Failed == 0
	rep.Digest = common.Sha256OfBytes(all)
	return rep
}

func formatValues(values odx.ParameterValues) map[string]string {
	out := make(map[string]string, len(values))
	for name, v := range values {
		out[name] = FormatValue(v)
	}
	return out
}

// FormatValue renders a physical value for display: scalars as-is,
// byte slices as spaced hex, nested structures and lists recursively.
func FormatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "-"
	case []byte:
		return fmt.Sprintf("% X", tv)
	case string:
		return tv
	case float64:
		return fmt.Sprintf("%g", tv)
	case odx.TableStructValue:
		return tv.Row + "=" + FormatValue(tv.Value)
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+FormatValue(tv[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []odx.ParameterValues:
		parts := make([]string, 0, len(tv))
		for _, item := range tv {
			parts = append(parts, FormatValue(map[string]any(item)))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, 0, len(tv))
		for _, item := range tv {
			parts = append(parts, FormatValue(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", tv)
	}
}

func SaveSessionJSON(rep SessionReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSessionJSON(path string) (SessionReport, error) {
	var rep SessionReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

func SaveAcceptanceJSON(rep verify.AcceptanceReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadAcceptanceJSON(path string) (verify.AcceptanceReport, error) {
	var rep verify.AcceptanceReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
