package config

import (
	"slices"
	"strconv"
	"strings"
)

// VideoEnv is exported to the child to toggle video capture.
const VideoEnv = "RUNLEDGER_RECORD_VIDEO"

// BuildCommand assembles the child argv. Explicit test paths win over the
// selection expression, which wins over the module markers.
func BuildCommand(cfg *AppConfig, tableReport string) []string {
	argv := slices.Clone(cfg.Command)
	switch {
	case len(cfg.Tests) > 0:
		argv = append(argv, cfg.Tests...)
	case cfg.Selection != "":
		argv = append(argv, "-m", cfg.Selection)
	case len(cfg.Modules) > 0:
		argv = append(argv, "-m", strings.Join(cfg.Modules, " or "))
	}
	argv = append(argv, "-v")
	if cfg.Verbose {
		argv = append(argv, "-s")
	}
	argv = append(argv, "--tb=short", "-rA", "--durations=0")
	if secs := int(cfg.Timeout.Std().Seconds()); secs > 0 {
		argv = append(argv, "--timeout="+strconv.Itoa(secs))
	}
	if cfg.Reruns > 0 {
		argv = append(argv, "--reruns="+strconv.Itoa(cfg.Reruns))
	}
	if tableReport != "" {
		argv = append(argv, "--html", tableReport, "--self-contained-html")
	}
	return argv
}

// ChildEnv returns the extra environment for the child process.
func ChildEnv(cfg *AppConfig) map[string]string {
	video := "0"
	if cfg.Video {
		video = "1"
	}
	return map[string]string{VideoEnv: video}
}
