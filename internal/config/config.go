package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory and the
// user config dir.
const FileName = ".runledger.yaml"

// Defaults for values the file may omit.
const (
	DefaultMaxLogLines    = 1000
	DefaultLookahead      = 10
	DefaultTerminateGrace = 10 * time.Second
	DefaultCaptureTimeout = 5 * time.Second
	DefaultWindow         = 10
	DefaultReportPrefix   = "report"
	DefaultLogLevel       = "info"
)

// Duration is a time.Duration that decodes from "90s" style strings or a
// bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Paths are the artifact locations.
type Paths struct {
	ReportsDir     string `yaml:"reports_dir"`
	ResultsDir     string `yaml:"results_dir"`
	ScreenshotsDir string `yaml:"screenshots_dir"`
	// RawOutput receives the child's console output. Empty derives a
	// timestamped file in ResultsDir.
	RawOutput string `yaml:"raw_output"`
	// TableReport is the structured results table the child writes. Empty
	// derives a timestamped file in ResultsDir.
	TableReport string `yaml:"table_report"`
}

// ReportConfig names the rendered report.
type ReportConfig struct {
	Prefix string `yaml:"prefix"`
	Title  string `yaml:"title"`
}

// HistoryConfig selects the trend store.
type HistoryConfig struct {
	Backend string `yaml:"backend"` // file, sqlite, postgres
	DSN     string `yaml:"dsn"`
	Window  int    `yaml:"window"`
}

// CaptureConfig drives screenshots of the page under test.
type CaptureConfig struct {
	// Command takes a screenshot; "{path}" is replaced with the target
	// file. Empty disables capture.
	Command []string `yaml:"command"`
	Timeout Duration `yaml:"timeout"`
}

// NotifyConfig routes the run summary.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	// Secret signs webhook requests when set.
	Secret string `yaml:"secret"`
}

// LogConfig sets logger verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AppConfig is the .runledger.yaml document.
type AppConfig struct {
	Command        []string          `yaml:"command"`
	Tests          []string          `yaml:"tests"`
	Modules        []string          `yaml:"modules"`
	Selection      string            `yaml:"selection"`
	Verbose        bool              `yaml:"verbose"`
	Timeout        Duration          `yaml:"timeout"`
	Reruns         int               `yaml:"reruns"`
	Encoding       string            `yaml:"encoding"`
	MaxLogLines    int               `yaml:"max_log_lines"`
	Lookahead      int               `yaml:"lookahead"`
	TerminateGrace Duration          `yaml:"terminate_grace"`
	Paths          Paths             `yaml:"paths"`
	Report         ReportConfig      `yaml:"report"`
	History        HistoryConfig     `yaml:"history"`
	Capture        CaptureConfig     `yaml:"capture"`
	Groups         map[string]string `yaml:"groups"`
	Video          bool              `yaml:"video"`
	Notify         NotifyConfig      `yaml:"notify"`
	Log            LogConfig         `yaml:"log"`
	Theme          string            `yaml:"theme"`
	NoColor        bool              `yaml:"no_color"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *AppConfig {
	return &AppConfig{
		Command:        []string{"pytest"},
		MaxLogLines:    DefaultMaxLogLines,
		Lookahead:      DefaultLookahead,
		TerminateGrace: Duration(DefaultTerminateGrace),
		Paths: Paths{
			ReportsDir:     "reports",
			ResultsDir:     "results",
			ScreenshotsDir: "screenshots",
		},
		Report:  ReportConfig{Prefix: DefaultReportPrefix, Title: "Test run report"},
		History: HistoryConfig{Backend: "file", Window: DefaultWindow},
		Capture: CaptureConfig{Timeout: Duration(DefaultCaptureTimeout)},
		Groups:  map[string]string{},
		Log:     LogConfig{Level: DefaultLogLevel},
		Theme:   "default",
	}
}

// LoadConfig reads path, or the discovered config file when path is empty,
// over the defaults. It returns the file actually used ("" for none).
func LoadConfig(path string) (*AppConfig, string, error) {
	cfg := Defaults()
	if path == "" {
		path = getConfigPath()
		if path == "" {
			return cfg, "", nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := decode(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, path, nil
}

// decode applies a YAML document on top of cfg. Unknown keys are errors so
// typos do not silently fall back to defaults.
func decode(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// getConfigPath checks the working directory first, then the user config
// dir.
func getConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "runledger", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}
	return ""
}
