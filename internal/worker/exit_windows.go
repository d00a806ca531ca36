//go:build windows

package worker

import "os/exec"

func exitStatus(cmd *exec.Cmd, err error) (int, string) {
	ps := cmd.ProcessState
	if ps == nil {
		if err != nil {
			return -1, ""
		}
		return 0, ""
	}
	return ps.ExitCode(), ""
}
