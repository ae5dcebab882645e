package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dkoosis/runledger/internal/config"
	"github.com/dkoosis/runledger/internal/live"
	"github.com/dkoosis/runledger/internal/pipeline"
	"github.com/dkoosis/runledger/internal/supervisor"
	"github.com/dkoosis/runledger/pkg/render"
	"github.com/dkoosis/runledger/pkg/report"
)

type runFlags struct {
	modules     []string
	selection   string
	verbose     bool
	window      int
	dryRun      bool
	debugConfig bool
}

func newRunCmd(s *streams, g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test suite and record the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := g.cliFlags(cmd)
			flags.Modules, flags.ModulesSet = f.modules, cmd.Flags().Changed("module")
			flags.Selection, flags.SelectionSet = f.selection, cmd.Flags().Changed("selection")
			flags.Verbose, flags.VerboseSet = f.verbose, cmd.Flags().Changed("verbose")
			flags.Window, flags.WindowSet = f.window, cmd.Flags().Changed("window")

			cfg, logger, err := setup(flags, s.err)
			if err != nil {
				return err
			}
			if f.debugConfig {
				printResolution(s, cfg)
			}
			if f.dryRun {
				paths := pipeline.ArtifactPaths(cfg.AppConfig, time.Now())
				fmt.Fprintln(s.out, shellJoin(config.BuildCommand(cfg.AppConfig, paths.TableReport)))
				return nil
			}
			return runSuite(cmd, s, cfg, logger)
		},
	}
	cmd.Flags().StringArrayVar(&f.modules, "module", nil, "module marker to run (repeatable)")
	cmd.Flags().StringVarP(&f.selection, "selection", "m", "", "marker expression, overrides --module")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "show test output (-s)")
	cmd.Flags().IntVar(&f.window, "window", 0, "runs in the trend window")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "print the test command and exit")
	cmd.Flags().BoolVar(&f.debugConfig, "debug-config", false, "print where each setting came from")
	return cmd
}

func runSuite(cmd *cobra.Command, s *streams, cfg *config.ResolvedConfig, logger *log.Logger) error {
	theme := render.ThemeByName(cfg.Theme, cfg.NoColor)
	interactive := live.IsTerminal(s.out)
	if interactive && logger.GetLevel() < log.WarnLevel {
		logger.SetLevel(log.WarnLevel)
	}

	p := pipeline.New(pipeline.Options{
		Config:  cfg.AppConfig,
		Logger:  logger,
		Display: live.New(s.out, interactive, theme),
	})
	out, err := p.Run(cmd.Context())
	if err != nil {
		var launchErr *supervisor.LaunchError
		if errors.As(err, &launchErr) {
			return launchError(err)
		}
		return err
	}

	doc := out.Document
	doc.Record = out.Record
	fmt.Fprintln(s.out)
	fmt.Fprint(s.out, render.NewTerminal(theme, termWidth(s.out)).Render(report.Patterns(doc)))
	return nil
}

func printResolution(s *streams, cfg *config.ResolvedConfig) {
	path := cfg.ConfigPath
	if path == "" {
		path = "(defaults)"
	}
	fmt.Fprintf(s.err, "config:        %s\n", path)
	fmt.Fprintf(s.err, "modules:       %v (%s)\n", cfg.Modules, cfg.ModulesSource)
	fmt.Fprintf(s.err, "log level:     %s (%s)\n", cfg.Log.Level, cfg.LogLevelSource)
	fmt.Fprintf(s.err, "history:       %s (%s)\n", cfg.History.Backend, cfg.HistorySource)
	fmt.Fprintf(s.err, "reports dir:   %s (%s)\n", cfg.Paths.ReportsDir, cfg.ReportsDirSource)
	fmt.Fprintf(s.err, "no color:      %t (%s)\n", cfg.NoColor, cfg.NoColorSource)
}

// shellJoin quotes arguments that need it so the line can be pasted into a
// shell.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'\\$`*?[]()<>|&;") {
			a = strconv.Quote(a)
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
