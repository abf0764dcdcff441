//go:build windows

package window

import (
	"sync"

	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/process"

	"golang.org/x/sys/windows"
)

const (
	swShowNormal = 1
	swMaximize   = 3
	swRestore    = 9

	gwOwner = 4

	vkF11          = 0x7A
	keyEventfKeyUp = 0x0002
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows         = user32.NewProc("EnumWindows")
	procIsWindowVisible     = user32.NewProc("IsWindowVisible")
	procGetWindow           = user32.NewProc("GetWindow")
	procMoveWindow          = user32.NewProc("MoveWindow")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procKeybdEvent          = user32.NewProc("keybd_event")

	// one callback for the process lifetime; see display/system_windows.go
	enumWindowsCallback = windows.NewCallback(enumWindow)
	enumMutex           sync.Mutex
	enumPIDs            map[uint32]bool
	enumFound           windows.HWND
)

type win32Controller struct {
	findPIDs func(name string) ([]int, error)
}

// NewSystemController returns the user32 controller
func NewSystemController() Controller {
	return &win32Controller{findPIDs: process.FindPIDsByName}
}

func (c *win32Controller) FindWindow(query Query) (Handle, error) {
	pids := make(map[uint32]bool)
	if query.PID > 0 {
		pids[uint32(query.PID)] = true
	}
	if query.ProcessName != "" {
		named, err := c.findPIDs(query.ProcessName)
		if err != nil {
			return 0, err
		}
		for _, pid := range named {
			pids[uint32(pid)] = true
		}
	}
	if len(pids) == 0 {
		return 0, nil
	}

	enumMutex.Lock()
	defer enumMutex.Unlock()

	enumPIDs = pids
	enumFound = 0
	// EnumWindows reports failure when the callback stops early
	_, _, _ = procEnumWindows.Call(enumWindowsCallback, 0)
	return Handle(enumFound), nil
}

func enumWindow(hwnd windows.HWND, _ uintptr) uintptr {
	visible, _, _ := procIsWindowVisible.Call(uintptr(hwnd))
	if visible == 0 {
		return 1
	}
	owner, _, _ := procGetWindow.Call(uintptr(hwnd), gwOwner)
	if owner != 0 {
		return 1
	}
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return 1
	}
	if enumPIDs[pid] {
		enumFound = hwnd
		return 0
	}
	return 1
}

func (c *win32Controller) MoveResize(handle Handle, bounds display.Rect) error {
	ret, _, callErr := procMoveWindow.Call(uintptr(handle),
		uintptr(int32(bounds.X)), uintptr(int32(bounds.Y)),
		uintptr(int32(bounds.Width)), uintptr(int32(bounds.Height)), 1)
	if ret == 0 {
		return errors.NewProcessError("MoveWindow failed", callErr).WithContext("bounds", bounds)
	}
	return nil
}

func (c *win32Controller) Show(handle Handle, mode ShowMode) error {
	cmd := uintptr(swShowNormal)
	switch mode {
	case ShowMaximize:
		cmd = swMaximize
	case ShowRestore:
		cmd = swRestore
	}
	// the return value is the previous visibility, not an error
	_, _, _ = procShowWindow.Call(uintptr(handle), cmd)
	return nil
}

func (c *win32Controller) SetForeground(handle Handle) error {
	ret, _, callErr := procSetForegroundWindow.Call(uintptr(handle))
	if ret == 0 {
		return errors.NewProcessError("SetForegroundWindow refused", callErr)
	}
	return nil
}

// SendFullscreenToggle synthesizes F11 for the foreground window
func (c *win32Controller) SendFullscreenToggle(handle Handle) error {
	if err := c.SetForeground(handle); err != nil {
		return err
	}
	if err := procKeybdEvent.Find(); err != nil {
		return errors.NewUnsupportedError("keybd_event unavailable", err)
	}
	_, _, _ = procKeybdEvent.Call(vkF11, 0, 0, 0)
	_, _, _ = procKeybdEvent.Call(vkF11, 0, keyEventfKeyUp, 0)
	return nil
}

