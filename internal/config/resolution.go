package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Resolution sources, highest priority first.
const (
	SourceCLI     = "cli"
	SourceEnv     = "env"
	SourceFile    = "file"
	SourceDefault = "default"
)

// CliFlags holds command-line values. The XxxSet fields record whether the
// user passed the flag explicitly.
type CliFlags struct {
	ConfigFile string

	Modules        []string
	Selection      string
	LogLevel       string
	ReportsDir     string
	HistoryBackend string
	HistoryDSN     string
	Window         int
	NoColor        bool
	Verbose        bool

	ModulesSet        bool
	SelectionSet      bool
	LogLevelSet       bool
	ReportsDirSet     bool
	HistoryBackendSet bool
	HistoryDSNSet     bool
	WindowSet         bool
	NoColorSet        bool
	VerboseSet        bool
}

// ResolvedConfig is the final configuration after applying precedence.
type ResolvedConfig struct {
	*AppConfig

	// ConfigPath is the file that was loaded, "" for defaults only.
	ConfigPath string

	// Resolution metadata, for --debug-config style output.
	ModulesSource    string
	LogLevelSource   string
	HistorySource    string
	ReportsDirSource string
	NoColorSource    string
}

// ResolveConfig applies CLI > env > file > defaults.
func ResolveConfig(flags CliFlags) (*ResolvedConfig, error) {
	appCfg, path, err := LoadConfig(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	fileSource := SourceDefault
	if path != "" {
		fileSource = SourceFile
	}
	resolved := &ResolvedConfig{
		AppConfig:        appCfg,
		ConfigPath:       path,
		ModulesSource:    fileSource,
		LogLevelSource:   fileSource,
		HistorySource:    fileSource,
		ReportsDirSource: fileSource,
		NoColorSource:    fileSource,
	}

	switch {
	case flags.ModulesSet:
		resolved.Modules = slices.Clone(flags.Modules)
		resolved.ModulesSource = SourceCLI
	case os.Getenv("RUNLEDGER_MODULES") != "":
		resolved.Modules = splitList(os.Getenv("RUNLEDGER_MODULES"))
		resolved.ModulesSource = SourceEnv
	}

	if flags.SelectionSet {
		resolved.Selection = flags.Selection
	} else if v := os.Getenv("RUNLEDGER_SELECTION"); v != "" {
		resolved.Selection = v
	}

	switch {
	case flags.LogLevelSet:
		resolved.Log.Level = flags.LogLevel
		resolved.LogLevelSource = SourceCLI
	case os.Getenv("RUNLEDGER_LOG_LEVEL") != "":
		resolved.Log.Level = os.Getenv("RUNLEDGER_LOG_LEVEL")
		resolved.LogLevelSource = SourceEnv
	}

	switch {
	case flags.ReportsDirSet:
		resolved.Paths.ReportsDir = flags.ReportsDir
		resolved.ReportsDirSource = SourceCLI
	case os.Getenv("RUNLEDGER_REPORTS_DIR") != "":
		resolved.Paths.ReportsDir = os.Getenv("RUNLEDGER_REPORTS_DIR")
		resolved.ReportsDirSource = SourceEnv
	}

	if v := os.Getenv("RUNLEDGER_HISTORY_BACKEND"); v != "" {
		resolved.History.Backend = v
		resolved.HistorySource = SourceEnv
	}
	if v := os.Getenv("RUNLEDGER_HISTORY_DSN"); v != "" {
		resolved.History.DSN = v
	}
	if flags.HistoryBackendSet {
		resolved.History.Backend = flags.HistoryBackend
		resolved.HistorySource = SourceCLI
	}
	if flags.HistoryDSNSet {
		resolved.History.DSN = flags.HistoryDSN
	}
	if flags.WindowSet {
		resolved.History.Window = flags.Window
	}

	if v := os.Getenv("RUNLEDGER_WEBHOOK_URL"); v != "" {
		resolved.Notify.WebhookURL = v
	}
	if b := getEnvBool("RUNLEDGER_VIDEO"); b != nil {
		resolved.Video = *b
	}

	if flags.NoColorSet {
		resolved.NoColor = flags.NoColor
		resolved.NoColorSource = SourceCLI
	} else if b := getEnvBool("RUNLEDGER_NO_COLOR", "NO_COLOR"); b != nil {
		resolved.NoColor = *b
		resolved.NoColorSource = SourceEnv
	}

	if flags.VerboseSet {
		resolved.Verbose = flags.Verbose
	}

	if err := validateResolvedConfig(resolved); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

// getEnvBool reads a boolean from the first set key. It returns nil when
// none is set or parseable.
func getEnvBool(keys ...string) *bool {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				return &b
			}
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validBackends = []string{"file", "sqlite", "postgres"}

func validateResolvedConfig(cfg *ResolvedConfig) error {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if !slices.Contains(validBackends, cfg.History.Backend) {
		return fmt.Errorf("invalid history.backend %q (must be: %s)", cfg.History.Backend, strings.Join(validBackends, ", "))
	}
	if cfg.History.Backend == "postgres" && cfg.History.DSN == "" {
		return fmt.Errorf("history.dsn is required for the postgres backend")
	}
	if cfg.History.Window <= 0 {
		return fmt.Errorf("history.window must be positive, got: %d", cfg.History.Window)
	}
	if cfg.MaxLogLines <= 0 {
		return fmt.Errorf("max_log_lines must be positive, got: %d", cfg.MaxLogLines)
	}
	if cfg.Lookahead <= 0 {
		return fmt.Errorf("lookahead must be positive, got: %d", cfg.Lookahead)
	}
	if cfg.Reruns < 0 {
		return fmt.Errorf("reruns cannot be negative, got: %d", cfg.Reruns)
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
	}
	if cfg.Report.Prefix == "" {
		return fmt.Errorf("report.prefix cannot be empty")
	}
	return nil
}
