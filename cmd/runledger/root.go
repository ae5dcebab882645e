package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dkoosis/runledger/internal/config"
	"github.com/dkoosis/runledger/internal/logging"
	"github.com/dkoosis/runledger/pkg/pattern"
	"github.com/dkoosis/runledger/pkg/render"
)

type streams struct {
	in       io.Reader
	out, err io.Writer
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile     string
	logLevel       string
	noColor        bool
	reportsDir     string
	historyBackend string
	historyDSN     string
}

func newRootCmd(s *streams) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "runledger",
		Short:         "Supervise test runs and keep a ledger of their results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default ./"+config.FileName+")")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")
	pf.StringVar(&g.reportsDir, "reports-dir", "", "directory for rendered reports")
	pf.StringVar(&g.historyBackend, "history-backend", "", "history store: file, sqlite, postgres")
	pf.StringVar(&g.historyDSN, "history-dsn", "", "sqlite path or postgres URL")

	root.AddCommand(
		newRunCmd(s, g),
		newReportCmd(s, g),
		newTrendCmd(s, g),
		newVersionCmd(s),
	)
	return root
}

// cliFlags maps the parsed global flags onto the resolver's input. Commands
// add their own fields before resolving.
func (g *globalFlags) cliFlags(cmd *cobra.Command) config.CliFlags {
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	return config.CliFlags{
		ConfigFile:        g.configFile,
		LogLevel:          g.logLevel,
		LogLevelSet:       changed("log-level"),
		NoColor:           g.noColor,
		NoColorSet:        changed("no-color"),
		ReportsDir:        g.reportsDir,
		ReportsDirSet:     changed("reports-dir"),
		HistoryBackend:    g.historyBackend,
		HistoryBackendSet: changed("history-backend"),
		HistoryDSN:        g.historyDSN,
		HistoryDSNSet:     changed("history-dsn"),
	}
}

// setup resolves configuration and builds the logger. Failures are usage
// errors.
func setup(flags config.CliFlags, stderr io.Writer) (*config.ResolvedConfig, *log.Logger, error) {
	cfg, err := config.ResolveConfig(flags)
	if err != nil {
		return nil, nil, usageError(err)
	}
	logger, err := logging.New(stderr, logging.Options{Level: cfg.Log.Level, NoColor: cfg.NoColor})
	if err != nil {
		return nil, nil, usageError(err)
	}
	if cfg.ConfigPath != "" {
		logger.Debug("loaded config", "path", cfg.ConfigPath)
	}
	return cfg, logger, nil
}

// renderPatterns writes patterns in the requested format.
func renderPatterns(w io.Writer, format string, cfg *config.ResolvedConfig, patterns []pattern.Pattern) error {
	switch format {
	case "terminal", "json", "markdown", "md":
	default:
		return usageError(fmt.Errorf("unknown format %q (expected terminal, json, markdown)", format))
	}
	theme := render.ThemeByName(cfg.Theme, cfg.NoColor)
	_, err := fmt.Fprint(w, render.ByFormat(format, theme, termWidth(w)).Render(patterns))
	return err
}

// termWidth returns the terminal width for w, defaulting to 80.
func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			return tw
		}
	}
	return 80
}
