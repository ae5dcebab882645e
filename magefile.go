//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	modulePath = "github.com/dkoosis/runledger"
	binPath    = "bin/runledger"
)

// Default target - build the binary
var Default = Build

// Build builds the runledger binary with version metadata
func Build() error {
	ldflags := strings.Join([]string{
		"-X " + modulePath + "/internal/version.Version=" + gitOutput("describe", "--tags", "--always", "--dirty"),
		"-X " + modulePath + "/internal/version.CommitHash=" + gitOutput("rev-parse", "--short", "HEAD"),
		"-X " + modulePath + "/internal/version.BuildDate=" + time.Now().UTC().Format(time.RFC3339),
	}, " ")
	return sh.RunV("go", "build", "-ldflags", ldflags, "-o", binPath, "./cmd/runledger")
}

// Clean removes build artifacts
func Clean() error {
	return sh.Rm("bin")
}

// QA runs formatting, vet, lint and the unit tests
func QA() {
	mg.SerialDeps(Lint.Format, Lint.Vet, Lint.Golangci, Test.All, Build)
}

// Lint namespace for linting commands
type Lint mg.Namespace

// Format fails when any file needs gofmt
func (Lint) Format() error {
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if out != "" {
		return fmt.Errorf("files need gofmt:\n%s", out)
	}
	return nil
}

// Vet runs go vet
func (Lint) Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Golangci runs golangci-lint when it is installed
func (Lint) Golangci() error {
	if _, err := exec.LookPath("golangci-lint"); err != nil {
		fmt.Fprintln(os.Stderr, "golangci-lint not found (install: go install github.com/golangci/golangci-lint/cmd/golangci-lint@latest)")
		return nil
	}
	return sh.RunV("golangci-lint", "run", "--timeout=5m", "./...")
}

// Test namespace for testing commands
type Test mg.Namespace

// All runs the unit tests
func (Test) All() error {
	return sh.RunV("go", "test", "-short", "./...")
}

// Race runs the unit tests with the race detector
func (Test) Race() error {
	return sh.RunV("go", "test", "-short", "-race", "./...")
}

// Coverage writes coverage.out and prints the per-function summary
func (Test) Coverage() error {
	if err := sh.RunV("go", "test", "-short", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Integration runs the container-backed store tests (needs Docker)
func (Test) Integration() error {
	return sh.RunV("go", "test", "-tags", "integration", "-run", "Integration", "./internal/history/...")
}

func gitOutput(args ...string) string {
	out, err := sh.Output("git", args...)
	if err != nil || out == "" {
		return "unknown"
	}
	return out
}
