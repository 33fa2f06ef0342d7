//go:build windows

package sandbox

import (
	"os/exec"
)

// setSysProcAttr is a no-op on Windows, which has no process groups in the
// POSIX sense.
func setSysProcAttr(cmd *exec.Cmd) {}

// killProcessGroup kills just the runner process on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
