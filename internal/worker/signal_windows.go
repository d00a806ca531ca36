//go:build windows

package worker

import "syscall"

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

// Windows has no process groups to signal; both the graceful and the
// forced path terminate the process handle.
func terminateGroup(pid int) error { return terminate(pid) }

func killGroup(pid int) error { return terminate(pid) }

func terminate(pid int) error {
	if pid <= 0 {
		return nil
	}
	handle, err := openProcess(processTerminate, uint32(pid))
	if err != nil {
		// The process is most likely already gone.
		return nil
	}
	defer closeHandle(handle)
	ret, _, callErr := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ret == 0 {
		return callErr
	}
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := openProcess(processQueryInformation, uint32(pid))
	if err != nil {
		return false
	}
	_ = closeHandle(handle)
	return true
}

func openProcess(access uint32, pid uint32) (syscall.Handle, error) {
	ret, _, err := procOpenProcess.Call(uintptr(access), 0, uintptr(pid))
	if ret == 0 {
		return 0, err
	}
	return syscall.Handle(ret), nil
}

func closeHandle(handle syscall.Handle) error {
	ret, _, err := procCloseHandle.Call(uintptr(handle))
	if ret == 0 {
		return err
	}
	return nil
}
