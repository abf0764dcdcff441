package process

import (
	"os"
	"os/exec"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
)

// Locator resolves the browser executable: search path first, then well-known install paths
type Locator struct {
	names    []string
	paths    []string
	logger   logging.Logger
	lookPath func(file string) (string, error)
	stat     func(name string) (os.FileInfo, error)
}

func NewLocator(names, paths []string, logger logging.Logger) *Locator {
	return &Locator{
		names:    append([]string(nil), names...),
		paths:    append([]string(nil), paths...),
		logger:   logger,
		lookPath: exec.LookPath,
		stat:     os.Stat,
	}
}

func (l *Locator) Resolve() (string, error) {
	for _, name := range l.names {
		path, err := l.lookPath(name)
		if err == nil {
			l.logger.Debugf("Browser found on search path, name: %s, path: %s", name, path)
			return path, nil
		}
	}

	for _, path := range l.paths {
		info, err := l.stat(path)
		if err == nil && !info.IsDir() {
			l.logger.Debugf("Browser found at install path, path: %s", path)
			return path, nil
		}
	}

	return "", errors.NewUnavailableError("browser executable not found", nil).
		WithContext("names", l.names).
		WithContext("paths", l.paths)
}
