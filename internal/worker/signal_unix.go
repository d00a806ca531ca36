//go:build !windows

package worker

import "syscall"

func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
