//go:build windows

package process

import (
	"golang.org/x/sys/windows"
)

const stillActive = 259

// IsProcessRunning opens pid with minimal rights and checks its exit code
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, windows.ERROR_INVALID_PARAMETER
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if err == windows.ERROR_INVALID_PARAMETER {
			return false, nil
		}
		return false, err
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false, err
	}
	return exitCode == stillActive, nil
}
