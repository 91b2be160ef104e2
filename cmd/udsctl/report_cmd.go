package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"example.com/udsgate/internal/report"
)

func init() {
	rootCmd.AddCommand(newReportCmd())
}

// readMessageLines reads one hex message per line, skipping blank lines
// and # comments. A path of "-" reads stdin.
func readMessageLines(path string) ([][]byte, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()
	}
	var messages [][]byte
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		coded, err := parseHexArg(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		messages = append(messages, coded)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if len(messages) == 0 {
		return nil, errors.Errorf("%s contains no messages", path)
	}
	return messages, nil
}

func newReportCmd() *cobra.Command {
	var (
		schemaPath string
		inPath     string
		outJSON    string
		outPDF     string
		outQR      string
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Decode a message list and render session artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			messages, err := readMessageLines(inPath)
			if err != nil {
				return err
			}
			rep := report.BuildSession(s, messages, modeOf(strict))

			if outJSON != "" {
				if err := report.SaveSessionJSON(rep, outJSON); err != nil {
					return errors.Wrap(err, "write session json")
				}
			}
			if outPDF != "" {
				if err := report.SaveSessionPDF(rep, outPDF); err != nil {
					return errors.Wrap(err, "write session pdf")
				}
			}
			if outQR != "" {
				png, err := report.SessionDigestQR(rep.Digest, 256)
				if err != nil {
					return errors.Wrap(err, "session qr")
				}
				if err := os.WriteFile(outQR, png, 0o644); err != nil {
					return errors.Wrap(err, "write session qr")
				}
			}

			data := pterm.TableData{
				{"Messages", strconv.Itoa(rep.Summary.Messages)},
				{"Decoded", strconv.Itoa(rep.Summary.Decoded)},
				{"Failed", strconv.Itoa(rep.Summary.Failed)},
				{"Warnings", strconv.Itoa(rep.Summary.Warnings)},
				{"Digest", rep.Digest},
			}
			if err := pterm.DefaultTable.WithData(data).Render(); err != nil {
				return err
			}
			fmt.Printf("PASS=%v, decoded=%d/%d\n", rep.Summary.Pass, rep.Summary.Decoded, rep.Summary.Messages)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema YAML file")
	cmd.Flags().StringVar(&inPath, "in", "", "message list file, one hex PDU per line (- for stdin)")
	cmd.Flags().StringVar(&outJSON, "out", "", "session report JSON output")
	cmd.Flags().StringVar(&outPDF, "pdf", "", "session report PDF output")
	cmd.Flags().StringVar(&outQR, "qr", "", "session digest QR PNG output")
	cmd.Flags().BoolVar(&strict, "strict", false, "escalate warnings to errors")
	return cmd
}
