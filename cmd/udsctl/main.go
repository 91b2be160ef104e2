package main

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"example.com/udsgate/internal/odx"
	"example.com/udsgate/internal/report"
	"example.com/udsgate/internal/schema"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "udsctl",
	Short:         "Encode, decode and lint diagnostic PDUs against a schema",
	Version:       version + " (built " + buildDate + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func loadSchemaFile(path string) (*schema.Schema, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("required: --schema")
	}
	s, err := schema.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load schema %s", path)
	}
	return s, nil
}

// parseHexArg decodes a hex message, tolerating spaces and a 0x prefix.
func parseHexArg(s string) ([]byte, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	cleaned = strings.TrimPrefix(cleaned, "0x")
	cleaned = strings.TrimPrefix(cleaned, "0X")
	if cleaned == "" {
		return nil, errors.New("empty hex string")
	}
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, errors.Wrap(err, "hex message")
	}
	return b, nil
}

// parseValuesArg decodes the --values JSON object into parameter
// values: "hex:" strings become byte slices, {"row","value"} objects
// become table-struct values and object lists become repetitions.
func parseValuesArg(raw string) (odx.ParameterValues, error) {
	if strings.TrimSpace(raw) == "" {
		return odx.ParameterValues{}, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, errors.Wrap(err, "parse --values")
	}
	out := make(odx.ParameterValues, len(decoded))
	for name, v := range decoded {
		out[name] = coerceValue(v)
	}
	return out, nil
}

func coerceValue(v any) any {
	switch tv := v.(type) {
	case string:
		if raw, found := strings.CutPrefix(tv, "hex:"); found {
			if b, err := parseHexArg(raw); err == nil {
				return b
			}
		}
		return tv
	case map[string]any:
		if row, ok := tv["row"].(string); ok && len(tv) == 2 {
			if inner, ok := tv["value"]; ok {
				return odx.TableStructValue{Row: row, Value: coerceValue(inner)}
			}
		}
		out := make(odx.ParameterValues, len(tv))
		for name, item := range tv {
			out[name] = coerceValue(item)
		}
		return out
	case []any:
		items := make([]odx.ParameterValues, 0, len(tv))
		for _, item := range tv {
			m, ok := coerceValue(item).(odx.ParameterValues)
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

func modeOf(strict bool) odx.Mode {
	if strict {
		return odx.Strict
	}
	return odx.Permissive
}

func printDecoded(m *odx.Message) error {
	pterm.DefaultSection.Printf("%s / %s", m.Service.ShortName, m.Structure.ShortName)

	names := make([]string, 0, len(m.Values))
	for name := range m.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	data := pterm.TableData{{"Parameter", "Value"}}
	for _, name := range names {
		data = append(data, []string{name, report.FormatValue(m.Values[name])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	printWarnings(m.Warnings)
	return nil
}

func printWarnings(warnings []odx.Warning) {
	for _, w := range warnings {
		pterm.Warning.Println(w.String())
	}
}
