package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"example.com/udsgate/internal/report"
	"example.com/udsgate/internal/verify"
)

func init() {
	rootCmd.AddCommand(newLintCmd())
}

func newLintCmd() *cobra.Command {
	var (
		schemaPath string
		rulesPath  string
		outDiag    string
		outAcc     string
		outPDF     string
	)
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run the schema rule pack and report findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			rulePack := verify.DefaultRulePack()
			if rulesPath != "" {
				rulePack, err = verify.LoadRulePack(rulesPath)
				if err != nil {
					return errors.Wrapf(err, "load rule pack %s", rulesPath)
				}
			}
			engine := verify.NewEngine(rulePack)
			engine.RegisterBuiltins()
			diags, err := engine.Eval(&verify.Context{SchemaFile: schemaPath, Schema: s})
			if err != nil {
				return errors.Wrap(err, "eval")
			}
			rep := engine.MakeAcceptance()

			if outDiag != "" {
				if err := engine.WriteDiagnosticsNDJSON(outDiag); err != nil {
					return errors.Wrap(err, "write diagnostics")
				}
			}
			if outAcc != "" {
				if err := report.SaveAcceptanceJSON(rep, outAcc); err != nil {
					return errors.Wrap(err, "write acceptance")
				}
			}
			if outPDF != "" {
				if err := report.SaveAcceptancePDF(rep, s.Name, outPDF); err != nil {
					return errors.Wrap(err, "write acceptance pdf")
				}
			}

			if len(diags) > 0 {
				data := pterm.TableData{{"Rule", "Severity", "Where", "Message"}}
				for _, d := range diags {
					data = append(data, []string{d.RuleId, string(d.Severity), findingLocation(d), d.Message})
				}
				if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
					return err
				}
			}
			fmt.Printf("PASS=%v, errors=%d, warnings=%d, diagnostics=%d\n",
				rep.Summary.Pass, rep.Summary.Errors, rep.Summary.Warnings, len(diags))
			if !rep.Summary.Pass {
				return errors.Errorf("schema %s failed lint with %d errors", s.Name, rep.Summary.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema YAML file")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule pack JSON file (default: built-in pack)")
	cmd.Flags().StringVar(&outDiag, "out", "", "diagnostics NDJSON output")
	cmd.Flags().StringVar(&outAcc, "acceptance", "", "acceptance JSON output")
	cmd.Flags().StringVar(&outPDF, "pdf", "", "acceptance PDF output")
	return cmd
}

func findingLocation(d verify.Diagnostic) string {
	parts := make([]string, 0, 3)
	if d.Structure != "" {
		parts = append(parts, d.Structure)
	}
	if d.Parameter != "" {
		parts = append(parts, d.Parameter)
	}
	if d.Service != "" {
		parts = append(parts, d.Service)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "/")
}
