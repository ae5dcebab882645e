//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op without process groups.
func setProcessGroup(*exec.Cmd) {}

// terminateGroup interrupts the child directly.
func terminateGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(os.Interrupt)
}

// killGroup kills the child directly.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func exitCodeFromError(*exec.ExitError) (int, bool) {
	return 0, false
}

// InterruptSignals are the signals that cancel a run.
func InterruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
