package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkoosis/runledger/internal/pipeline"
	"github.com/dkoosis/runledger/pkg/extract"
	"github.com/dkoosis/runledger/pkg/report"
)

func newReportCmd(s *streams, g *globalFlags) *cobra.Command {
	var rawPath, tablePath, format string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rebuild a report from a saved console log and results table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(g.cliFlags(cmd), s.err)
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(rawPath)
			if err != nil {
				return usageError(fmt.Errorf("reading console log: %w", err))
			}

			var table io.Reader
			if tablePath != "" {
				f, err := os.Open(tablePath)
				if err != nil {
					return usageError(fmt.Errorf("opening results table: %w", err))
				}
				defer f.Close()
				table = f
			}

			p := pipeline.New(pipeline.Options{Config: cfg.AppConfig, Logger: logger})
			out, err := p.Offline(cmd.Context(), extract.SplitLines(string(raw)), table)
			if err != nil {
				return usageError(err)
			}
			doc := out.Document
			doc.Record = out.Record
			return renderPatterns(s.out, format, cfg, report.Patterns(doc))
		},
	}
	cmd.Flags().StringVar(&rawPath, "raw", "", "console log of the run (required)")
	cmd.Flags().StringVar(&tablePath, "table", "", "results table written by the test command")
	cmd.Flags().StringVar(&format, "format", "terminal", "output format: terminal, json, markdown")
	_ = cmd.MarkFlagRequired("raw")
	return cmd
}
