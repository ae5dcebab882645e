// Package logging builds the structured logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Failure kinds used as the "kind" key on degraded-path log entries.
const (
	KindStreamFailure       = "stream_failure"
	KindExtractionAmbiguity = "extraction_ambiguity"
	KindCaptureTimeout      = "capture_timeout"
	KindCaptureUnavailable  = "capture_unavailable"
	KindPersistenceFailure  = "persistence_failure"
	KindRenderFailure       = "render_failure"
	KindNotifyFailure       = "notify_failure"
)

// Options configures New.
type Options struct {
	Level   string
	NoColor bool
	// Timestamps adds a time column, useful when output goes to a file.
	Timestamps bool
}

// New returns a logger writing to w with lipgloss level badges.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: opts.Timestamps,
		TimeFormat:      time.TimeOnly,
	})
	if opts.NoColor {
		logger.SetColorProfile(termenv.Ascii)
	} else {
		logger.SetColorProfile(lipgloss.ColorProfile())
	}
	logger.SetStyles(styles())
	return logger, nil
}

// Discard returns a logger that drops everything, for tests and dry runs.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	s.Levels = map[log.Level]lipgloss.Style{
		log.DebugLevel: badge("DEBUG", "#3F51B5", "#000000"),
		log.InfoLevel:  badge("INFO", "#4CAF50", "#000000"),
		log.WarnLevel:  badge("WARN", "#FF9800", "#000000"),
		log.ErrorLevel: badge("ERROR", "#F44336", "#000000"),
		log.FatalLevel: badge("FATAL", "#F44336", "#FFFFFF"),
	}
	s.Key = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Bold(true)
	s.Value = lipgloss.NewStyle()
	s.Separator = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	return s
}

func badge(label, bg, fg string) lipgloss.Style {
	return lipgloss.NewStyle().
		SetString(label).
		Background(lipgloss.Color(bg)).
		Foreground(lipgloss.Color(fg)).
		Padding(0, 1)
}
