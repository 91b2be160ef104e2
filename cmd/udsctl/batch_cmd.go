package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/udsgate/internal/common"
	"example.com/udsgate/internal/odx"
	"example.com/udsgate/internal/report"
)

func init() {
	rootCmd.AddCommand(newBatchCmd())
}

type batchOptions struct {
	schemaPath  string
	inPath      string
	outPath     string
	concurrency int
	strict      bool
	progress    bool
	metrics     bool
}

type batchRecord struct {
	Index     int               `json:"index"`
	Message   string            `json:"message"`
	Service   string            `json:"service,omitempty"`
	Structure string            `json:"structure,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func newBatchCmd() *cobra.Command {
	opts := batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Decode a message list concurrently and write NDJSON results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts)
		},
	}
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "schema YAML file")
	cmd.Flags().StringVar(&opts.inPath, "in", "", "message list file, one hex PDU per line (- for stdin)")
	cmd.Flags().StringVar(&opts.outPath, "out", "results.ndjson", "NDJSON results output")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", runtime.NumCPU(), "maximum concurrent decodes")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "escalate warnings to errors")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "display decode progress updates")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print decode throughput metrics")
	return cmd
}

func runBatch(opts batchOptions) error {
	s, err := loadSchemaFile(opts.schemaPath)
	if err != nil {
		return err
	}
	messages, err := readMessageLines(opts.inPath)
	if err != nil {
		return err
	}
	if opts.concurrency <= 0 {
		opts.concurrency = runtime.NumCPU()
	}
	mode := modeOf(opts.strict)

	metrics := common.NewMetrics()
	var total int64
	for _, coded := range messages {
		total += int64(len(coded))
	}
	metrics.SetTotalBytes(total)
	metrics.Start()
	var stopProgress func()
	if opts.progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}

	results := make([]batchRecord, len(messages))
	var g errgroup.Group
	g.SetLimit(opts.concurrency)
	for i, coded := range messages {
		i, coded := i, coded
		g.Go(func() error {
			rec := batchRecord{
				Index:   i,
				Message: strings.ToUpper(hex.EncodeToString(coded)),
			}
			m, err := odx.DecodeAny(s.Services, coded, mode)
			if err != nil {
				rec.Error = err.Error()
				metrics.IncFailure()
			} else {
				rec.Service = m.Service.ShortName
				rec.Structure = m.Structure.ShortName
				rec.Values = make(map[string]string, len(m.Values))
				names := make([]string, 0, len(m.Values))
				for name := range m.Values {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					rec.Values[name] = report.FormatValue(m.Values[name])
				}
				for _, w := range m.Warnings {
					rec.Warnings = append(rec.Warnings, w.String())
				}
				metrics.AddMessage(int64(len(coded)))
			}
			results[i] = rec
			return nil
		})
	}
	err = g.Wait()
	if stopProgress != nil {
		stopProgress()
	}
	metrics.Stop()
	if err != nil {
		return err
	}

	f, err := os.Create(opts.outPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", opts.outPath)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, rec := range results {
		b, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "marshal result")
		}
		w.Write(b)
		w.WriteString("\n")
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "write %s", opts.outPath)
	}

	snap := metrics.Snapshot()
	fmt.Printf("Decoded %d/%d messages, %d failures\n",
		snap.Messages, len(messages), snap.Failures)
	if opts.metrics {
		fmt.Printf("Metrics: duration=%s processed=%s rate=%.0f msg/s\n",
			snap.Duration.Round(10*time.Millisecond),
			common.FormatBytes(snap.Bytes),
			snap.MessagesPerSecond(),
		)
	}
	return nil
}
