package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dkoosis/runledger/internal/history"
	"github.com/dkoosis/runledger/internal/pipeline"
	"github.com/dkoosis/runledger/pkg/report"
)

func newTrendCmd(s *streams, g *globalFlags) *cobra.Command {
	var limit int
	var format string
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show pass rate and duration across recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := g.cliFlags(cmd)
			flags.Window, flags.WindowSet = limit, cmd.Flags().Changed("limit")
			cfg, logger, err := setup(flags, s.err)
			if err != nil {
				return err
			}

			store, err := pipeline.OpenStore(cmd.Context(), cfg.AppConfig, logger)
			if err != nil {
				return err
			}
			trend := history.NewTrend(store, &history.Recovery{
				Dir:    cfg.Paths.ReportsDir,
				Prefix: cfg.Report.Prefix,
				Logger: logger,
			}, logger)
			defer trend.Close()

			win, err := trend.Window(cmd.Context(), cfg.History.Window, nil)
			if err != nil && !errors.Is(err, history.ErrNoHistory) {
				return err
			}
			return renderPatterns(s.out, format, cfg, report.TrendPatterns(win))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of runs to show (default history.window)")
	cmd.Flags().StringVar(&format, "format", "terminal", "output format: terminal, json, markdown")
	return cmd
}
