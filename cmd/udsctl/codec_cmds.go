package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"example.com/udsgate/internal/odx"
)

func init() {
	rootCmd.AddCommand(newServicesCmd())
	rootCmd.AddCommand(newEncodeCmd())
	rootCmd.AddCommand(newDecodeCmd())
	rootCmd.AddCommand(newIdentifyCmd())
}

func newServicesCmd() *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the services of a schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Service", "Request", "Positive", "Negative"}}
			for _, name := range s.ServiceNames() {
				svc := s.Service(name)
				request := "-"
				if svc.Request != nil {
					request = svc.Request.ShortName
				}
				data = append(data, []string{
					name,
					request,
					structureNames(svc.PositiveResponses),
					structureNames(svc.NegativeResponses),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema YAML file")
	return cmd
}

func structureNames(structures []*odx.Structure) string {
	if len(structures) == 0 {
		return "-"
	}
	names := make([]string, len(structures))
	for i, st := range structures {
		names[i] = st.ShortName
	}
	return strings.Join(names, ", ")
}

func newEncodeCmd() *cobra.Command {
	var (
		schemaPath string
		service    string
		kind       string
		response   string
		valuesJSON string
		trigger    string
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode parameter values into a PDU",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			svc := s.Service(service)
			if svc == nil {
				return errors.Errorf("unknown service %q", service)
			}
			values, err := parseValuesArg(valuesJSON)
			if err != nil {
				return err
			}
			mode := modeOf(strict)

			var coded []byte
			var warnings []odx.Warning
			switch strings.ToLower(kind) {
			case "", "request":
				coded, warnings, err = svc.EncodeRequest(values, mode)
			case "positive", "negative", "response":
				resp := svc.ResponseByName(response)
				if resp == nil {
					return errors.Errorf("unknown response %q for service %q", response, service)
				}
				var triggerBytes []byte
				if trigger != "" {
					if triggerBytes, err = parseHexArg(trigger); err != nil {
						return err
					}
				}
				coded, warnings, err = svc.EncodeResponse(resp, values, triggerBytes, mode)
			default:
				return errors.Errorf("unknown kind %q", kind)
			}
			if err != nil {
				return err
			}
			printWarnings(warnings)
			fmt.Println(strings.ToUpper(hex.EncodeToString(coded)))
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema YAML file")
	cmd.Flags().StringVar(&service, "service", "", "service short name")
	cmd.Flags().StringVar(&kind, "kind", "request", "request, positive, negative or response")
	cmd.Flags().StringVar(&response, "response", "", "response structure short name")
	cmd.Flags().StringVar(&valuesJSON, "values", "", "parameter values as a JSON object")
	cmd.Flags().StringVar(&trigger, "trigger", "", "triggering request as hex")
	cmd.Flags().BoolVar(&strict, "strict", false, "escalate warnings to errors")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var (
		schemaPath string
		service    string
		message    string
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a PDU against one service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			svc := s.Service(service)
			if svc == nil {
				return errors.Errorf("unknown service %q", service)
			}
			coded, err := parseHexArg(message)
			if err != nil {
				return err
			}
			m, err := svc.DecodeMessage(coded, modeOf(strict))
			if err != nil {
				return err
			}
			return printDecoded(m)
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema YAML file")
	cmd.Flags().StringVar(&service, "service", "", "service short name")
	cmd.Flags().StringVar(&message, "message", "", "PDU as hex")
	cmd.Flags().BoolVar(&strict, "strict", false, "escalate warnings to errors")
	return cmd
}

func newIdentifyCmd() *cobra.Command {
	var (
		schemaPath string
		message    string
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Dispatch a PDU across every service of the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			coded, err := parseHexArg(message)
			if err != nil {
				return err
			}
			m, err := odx.DecodeAny(s.Services, coded, modeOf(strict))
			if err != nil {
				return err
			}
			return printDecoded(m)
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema YAML file")
	cmd.Flags().StringVar(&message, "message", "", "PDU as hex")
	cmd.Flags().BoolVar(&strict, "strict", false, "escalate warnings to errors")
	return cmd
}
