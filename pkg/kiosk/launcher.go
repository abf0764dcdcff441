package kiosk

import (
	"context"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/process"
	"github.com/core-tools/hsu-kiosk/pkg/window"
)

const (
	KioskFlag          = "--kiosk"
	FullscreenTypeFlag = "--edge-kiosk-type=fullscreen"

	DefaultWindowTimeout = 4 * time.Second
	DefaultWindowPoll    = 100 * time.Millisecond
	DefaultSettleDelay   = 500 * time.Millisecond
)

// Resolver finds the browser executable
type Resolver interface {
	Resolve() (string, error)
}

type Options struct {
	WindowTimeout time.Duration
	WindowPoll    time.Duration
	SettleDelay   time.Duration
}

func DefaultOptions() Options {
	return Options{
		WindowTimeout: DefaultWindowTimeout,
		WindowPoll:    DefaultWindowPoll,
		SettleDelay:   DefaultSettleDelay,
	}
}

type Request struct {
	URL          string
	DisplayIndex int
	ExtraArgs    []string
}

// Result describes how far a launch got. PID is set once the browser started;
// Window once its window was found.
type Result struct {
	BrowserPath string
	PID         int
	Display     display.Descriptor
	Window      window.Handle
}

// Launcher starts the kiosk browser and places its window on the target display
type Launcher struct {
	resolver      Resolver
	spawner       process.Spawner
	displays      display.Enumerator
	windows       window.Controller
	windowProcess string
	options       Options
	logger        logging.Logger
}

func NewLauncher(
	resolver Resolver,
	spawner process.Spawner,
	displays display.Enumerator,
	windows window.Controller,
	windowProcess string,
	options Options,
	logger logging.Logger,
) *Launcher {
	defaults := DefaultOptions()
	if options.WindowTimeout <= 0 {
		options.WindowTimeout = defaults.WindowTimeout
	}
	if options.WindowPoll <= 0 {
		options.WindowPoll = defaults.WindowPoll
	}
	if options.SettleDelay < 0 {
		options.SettleDelay = defaults.SettleDelay
	}
	return &Launcher{
		resolver:      resolver,
		spawner:       spawner,
		displays:      displays,
		windows:       windows,
		windowProcess: windowProcess,
		options:       options,
		logger:        logger,
	}
}

// BuildArgs composes the browser command line
func BuildArgs(url string, extra []string) []string {
	args := []string{KioskFlag, url, FullscreenTypeFlag}
	return append(args, extra...)
}

// Launch runs the launch steps in order and stops at the first failure. A
// browser that started is left running even when placing its window fails.
func (l *Launcher) Launch(ctx context.Context, req Request) (Result, error) {
	var result Result

	path, err := l.resolver.Resolve()
	if err != nil {
		l.logger.Errorf("Browser not found, error: %v", err)
		return result, err
	}
	result.BrowserPath = path

	target, displayErr := l.selectDisplay(req.DisplayIndex)
	if displayErr != nil {
		l.logger.Warnf("Cannot choose a display, window will not be placed, error: %v", displayErr)
	} else {
		result.Display = target
	}

	args := BuildArgs(req.URL, req.ExtraArgs)
	handle, err := l.spawner.Spawn(path, args)
	if err != nil {
		l.logger.Errorf("Failed to start browser, path: %s, error: %v", path, err)
		return result, err
	}
	result.PID = handle.PID
	l.logger.Infof("Browser started, pid: %d, url: %s", handle.PID, req.URL)

	if displayErr != nil {
		return result, displayErr
	}

	hwnd, err := l.waitForWindow(ctx, handle)
	if err != nil {
		l.logger.Warnf("Browser window not placed, pid: %d, error: %v", handle.PID, err)
		return result, err
	}
	result.Window = hwnd

	if err := l.place(ctx, hwnd, target); err != nil {
		l.logger.Errorf("Failed to place browser window, window: %d, display: %s, error: %v", hwnd, target, err)
		return result, err
	}

	l.logger.Infof("Kiosk window placed, pid: %d, window: %d, display: %s", handle.PID, hwnd, target)
	return result, nil
}

func (l *Launcher) selectDisplay(index int) (display.Descriptor, error) {
	displays, err := l.displays.ListDisplays()
	if err != nil {
		return display.Descriptor{}, err
	}
	target, reason, ok := display.SelectTarget(displays, index)
	if !ok {
		return display.Descriptor{}, errors.NewNotFoundError("no display to place the browser window on", nil)
	}
	l.logger.Infof("Target display chosen, display: %s, reason: %s", target, reason)
	return target, nil
}

// waitForWindow polls until the browser shows a top-level window
func (l *Launcher) waitForWindow(ctx context.Context, handle *process.Handle) (window.Handle, error) {
	query := window.Query{ProcessName: l.windowProcess, PID: handle.PID}
	deadline := time.Now().Add(l.options.WindowTimeout)

	ticker := time.NewTicker(l.options.WindowPoll)
	defer ticker.Stop()

	launcherExitLogged := false
	for {
		hwnd, err := l.windows.FindWindow(query)
		if err != nil {
			return 0, err
		}
		if hwnd != 0 {
			return hwnd, nil
		}

		// Edge hands the window over to an already running instance and exits
		if !launcherExitLogged && handle.Exited() {
			l.logger.Debugf("Launcher process exited, pid: %d, exit_code: %d, error: %v, still looking for process: %s",
				handle.PID, handle.ExitCode(), handle.ExitErr(), l.windowProcess)
			launcherExitLogged = true
		}

		if !time.Now().Before(deadline) {
			return 0, errors.NewTimeoutError("browser window did not appear", nil).
				WithContext("pid", handle.PID).
				WithContext("timeout", l.options.WindowTimeout)
		}

		select {
		case <-ctx.Done():
			return 0, errors.NewCancelledError("window wait cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Launcher) place(ctx context.Context, hwnd window.Handle, target display.Descriptor) error {
	if err := l.windows.MoveResize(hwnd, target.Bounds); err != nil {
		return err
	}
	if err := l.windows.Show(hwnd, window.ShowMaximize); err != nil {
		return err
	}
	if err := l.windows.SetForeground(hwnd); err != nil {
		l.logger.Warnf("Could not bring browser to foreground, window: %d, error: %v", hwnd, err)
	}

	if l.options.SettleDelay > 0 {
		timer := time.NewTimer(l.options.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return errors.NewCancelledError("cancelled before fullscreen toggle", ctx.Err())
		case <-timer.C:
		}
	}

	return l.windows.SendFullscreenToggle(hwnd)
}
