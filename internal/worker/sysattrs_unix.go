//go:build !windows

package worker

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the child in its own process group so
// terminate/kill signals reach the worker and everything it spawned.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
