package process

import (
	"os"
	"os/exec"
	"sync"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
)

// Handle is a started process. The process is reaped in the background.
type Handle struct {
	PID  int
	Path string
	Args []string

	done     chan struct{}
	mutex    sync.Mutex
	exitErr  error
	exitCode int
}

// Exited reports whether the process has terminated
func (h *Handle) Exited() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed when the process exits
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) ExitCode() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.exitCode
}

// ExitErr is the error returned by Wait, nil while running or after a clean exit
func (h *Handle) ExitErr() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.exitErr
}

// Spawner starts external processes
type Spawner interface {
	Spawn(path string, args []string) (*Handle, error)
}

// ExecSpawner starts detached processes that outlive the caller's sequence
type ExecSpawner struct {
	logger logging.Logger
}

func NewExecSpawner(logger logging.Logger) *ExecSpawner {
	return &ExecSpawner{logger: logger}
}

func (s *ExecSpawner) Spawn(path string, args []string) (*Handle, error) {
	if path == "" {
		return nil, errors.NewValidationError("executable path is required", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewUnavailableError("executable not accessible", err).WithContext("executable_path", path)
	}

	// no CommandContext: the browser must keep running after the launch sequence ends
	cmd := exec.Command(path, args...)
	cmd.Env = os.Environ()
	setupProcessAttributes(cmd)

	s.logger.Infof("Starting process, path: %s, args: %v", path, args)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start the process", err).WithContext("executable_path", path)
	}

	handle := &Handle{
		PID:  cmd.Process.Pid,
		Path: path,
		Args: append([]string(nil), args...),
		done: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		handle.mutex.Lock()
		handle.exitErr = err
		if cmd.ProcessState != nil {
			handle.exitCode = cmd.ProcessState.ExitCode()
		}
		handle.mutex.Unlock()
		close(handle.done)
		s.logger.Debugf("Process exited, pid: %d, error: %v", handle.PID, err)
	}()

	s.logger.Infof("Process started, pid: %d", handle.PID)
	return handle, nil
}
