package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MergesOverDefaults_When_FilePartial(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
modules: [teaching, exam]
timeout: 90s
terminate_grace: 3
history:
  backend: sqlite
groups:
  teaching: Teaching
`)

	cfg, used, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, []string{"teaching", "exam"}, cfg.Modules)
	assert.Equal(t, 90*time.Second, cfg.Timeout.Std())
	assert.Equal(t, 3*time.Second, cfg.TerminateGrace.Std())
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, DefaultWindow, cfg.History.Window)
	assert.Equal(t, []string{"pytest"}, cfg.Command)
	assert.Equal(t, "Teaching", cfg.Groups["teaching"])
	assert.Equal(t, DefaultCaptureTimeout, cfg.Capture.Timeout.Std())
}

func TestLoadConfig_ReturnsError_When_UnknownKey(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "modulez: [exam]\n")

	_, _, err := LoadConfig(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "modulez")
}

func TestLoadConfig_ReturnsError_When_DurationInvalid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "timeout: soon\n")

	_, _, err := LoadConfig(path)

	require.Error(t, err)
}

func TestLoadConfig_ReturnsDefaults_When_FileEmpty(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")

	cfg, _, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestGetConfigPath_ReturnsLocalConfig_When_FileExists(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "verbose: true\n")

	assert.Equal(t, FileName, getConfigPath())
}

func TestGetConfigPath_UsesXDGPath_When_LocalMissing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	xdgRoot := filepath.Join(dir, "xdg")
	require.NoError(t, os.MkdirAll(filepath.Join(xdgRoot, "runledger"), 0o755))
	want := writeConfig(t, filepath.Join(xdgRoot, "runledger"), "verbose: true\n")
	t.Setenv("XDG_CONFIG_HOME", xdgRoot)
	t.Setenv("HOME", filepath.Join(dir, "home"))

	assert.Equal(t, want, getConfigPath())
}

func TestGetConfigPath_ReturnsEmpty_When_NoConfigAvailable(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", filepath.Join(dir, "home"))

	assert.Empty(t, getConfigPath())
}

func TestBuildCommand_UsesModules_When_NoSelection(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Modules = []string{"teaching", "exam"}
	cfg.Reruns = 2
	cfg.Timeout = Duration(2 * time.Minute)
	cfg.Verbose = true

	argv := BuildCommand(cfg, "results/table.html")

	assert.Equal(t, []string{
		"pytest", "-m", "teaching or exam", "-v", "-s",
		"--tb=short", "-rA", "--durations=0",
		"--timeout=120", "--reruns=2",
		"--html", "results/table.html", "--self-contained-html",
	}, argv)
}

func TestBuildCommand_PrefersTests_When_PathsGiven(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	cfg.Command = []string{"python", "-m", "pytest"}
	cfg.Tests = []string{"tests/test_a.py::test_one"}
	cfg.Selection = "smoke"
	cfg.Modules = []string{"exam"}

	argv := BuildCommand(cfg, "")

	assert.Equal(t, []string{"python", "-m", "pytest", "tests/test_a.py::test_one", "-v", "--tb=short", "-rA", "--durations=0"}, argv)
	assert.Equal(t, []string{"python", "-m", "pytest"}, cfg.Command)
}

func TestChildEnv_ExportsVideoToggle(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	assert.Equal(t, "0", ChildEnv(cfg)[VideoEnv])
	cfg.Video = true
	assert.Equal(t, "1", ChildEnv(cfg)[VideoEnv])
}
