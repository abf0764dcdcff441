//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// IsProcessRunning probes pid with signal 0
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, syscall.EINVAL
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		// exists, owned by someone else
		return true, nil
	default:
		return false, err
	}
}
