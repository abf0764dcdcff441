//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes detaches the browser from the agent's console signal group
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
