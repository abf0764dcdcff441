package runtimefiles

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
)

const (
	DefaultAppName = "hsu-kiosk"

	ConfigFileName = "kiosk.yaml"
	LogFileName    = "launcher.log"
	pidFileName    = "kiosk.pid"
	portFileName   = "kiosk.port"
)

// Context says how long the agent's runtime files should live
type Context string

const (
	// UserContext keeps runtime files for the user across sessions
	UserContext Context = "user"

	// SessionContext keeps runtime files in the login session (removed on logout)
	SessionContext Context = "session"
)

type Config struct {
	// RuntimeDirectory holds the PID and port files. Empty selects an OS default.
	RuntimeDirectory string

	// StateDirectory holds the configuration and log file. Empty selects an OS default.
	StateDirectory string

	Context Context
	AppName string
}

// Manager generates and maintains the agent's files: PID and control port in
// the runtime directory, configuration and log in the state directory
type Manager struct {
	config Config
	logger logging.Logger
}

func NewManager(config Config, logger logging.Logger) *Manager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.Context == "" {
		config.Context = SessionContext
	}
	return &Manager{
		config: config,
		logger: logger,
	}
}

func (m *Manager) RuntimeDirectory() string {
	if m.config.RuntimeDirectory != "" {
		return m.config.RuntimeDirectory
	}
	return filepath.Join(m.runtimeBase(), m.config.AppName)
}

func (m *Manager) StateDirectory() string {
	if m.config.StateDirectory != "" {
		return m.config.StateDirectory
	}
	return filepath.Join(stateBase(), m.config.AppName)
}

func (m *Manager) PIDFilePath() string {
	return filepath.Join(m.RuntimeDirectory(), pidFileName)
}

func (m *Manager) PortFilePath() string {
	return filepath.Join(m.RuntimeDirectory(), portFileName)
}

func (m *Manager) ConfigFilePath() string {
	return filepath.Join(m.StateDirectory(), ConfigFileName)
}

func (m *Manager) LogFilePath() string {
	return filepath.Join(m.StateDirectory(), LogFileName)
}

func (m *Manager) WritePIDFile(pid int) error {
	return m.writeNumber(m.PIDFilePath(), "PID", pid)
}

func (m *Manager) ReadPIDFile() (int, error) {
	return m.readNumber(m.PIDFilePath(), "PID")
}

func (m *Manager) WritePortFile(port int) error {
	return m.writeNumber(m.PortFilePath(), "port", port)
}

func (m *Manager) ReadPortFile() (int, error) {
	return m.readNumber(m.PortFilePath(), "port")
}

// Remove deletes the PID and port files; missing files are not an error
func (m *Manager) Remove() {
	for _, path := range []string{m.PIDFilePath(), m.PortFilePath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warnf("Failed to remove runtime file, path: %s, error: %v", path, err)
		}
	}
}

func (m *Manager) writeNumber(path, kind string, value int) error {
	if err := EnsureDirectory(filepath.Dir(path)); err != nil {
		m.logger.Errorf("Runtime directory not usable, path: %s, error: %v", path, err)
		return err
	}

	content := fmt.Sprintf("%d\n", value)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.NewIOError("failed to write "+kind+" file", err).WithContext("path", path)
	}

	m.logger.Debugf("%s file written, value: %d, path: %s", kind, value, path)
	return nil
}

func (m *Manager) readNumber(path, kind string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError(kind+" file not found", err).WithContext("path", path)
		}
		return 0, errors.NewIOError("failed to read "+kind+" file", err).WithContext("path", path)
	}

	text := strings.TrimSpace(string(content))
	value, err := strconv.Atoi(text)
	if err != nil || value <= 0 {
		return 0, errors.NewValidationError("invalid "+kind+" file content", err).
			WithContext("path", path).
			WithContext("content", text)
	}
	return value, nil
}

// EnsureDirectory creates dir when missing and checks that it is a directory
func EnsureDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create directory", err).WithContext("directory", dir)
		}
		return nil
	}
	if !info.IsDir() {
		return errors.NewValidationError("path is not a directory", nil).WithContext("path", dir)
	}
	return nil
}

func (m *Manager) runtimeBase() string {
	switch runtime.GOOS {
	case "windows":
		if m.config.Context == UserContext {
			return localAppData()
		}
		return os.TempDir()

	case "darwin":
		return os.TempDir()

	default:
		if m.config.Context == SessionContext {
			if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
				return dir
			}
			sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
			if _, err := os.Stat(sessionDir); err == nil {
				return sessionDir
			}
		}
		return os.TempDir()
	}
}

func stateBase() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	if runtime.GOOS == "windows" {
		return localAppData()
	}
	return os.TempDir()
}

func localAppData() string {
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return dir
	}
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		return filepath.Join(profile, "AppData", "Local")
	}
	return os.TempDir()
}
