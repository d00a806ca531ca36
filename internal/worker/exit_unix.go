//go:build !windows

package worker

import (
	"os/exec"
	"syscall"
)

// exitStatus extracts the exit code, and the signal name when the child was
// signal-terminated, from a completed command.
func exitStatus(cmd *exec.Cmd, err error) (int, string) {
	ps := cmd.ProcessState
	if ps == nil {
		if err != nil {
			return -1, ""
		}
		return 0, ""
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	return ps.ExitCode(), ""
}
