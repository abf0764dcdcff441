package window

import (
	"github.com/core-tools/hsu-kiosk/pkg/display"
)

// Handle identifies a top-level window; zero means none
type Handle uintptr

type ShowMode int

const (
	ShowNormal ShowMode = iota
	ShowRestore
	ShowMaximize
)

func (m ShowMode) String() string {
	switch m {
	case ShowRestore:
		return "restore"
	case ShowMaximize:
		return "maximize"
	default:
		return "normal"
	}
}

// Query selects the browser window: any visible top-level window owned by PID
// or by a process whose image name is ProcessName
type Query struct {
	ProcessName string
	PID         int
}

// Controller is the window-system surface the kiosk launcher needs
type Controller interface {
	// FindWindow returns 0 and no error when no matching window exists yet
	FindWindow(query Query) (Handle, error)
	MoveResize(handle Handle, bounds display.Rect) error
	Show(handle Handle, mode ShowMode) error
	SetForeground(handle Handle) error
	SendFullscreenToggle(handle Handle) error
}
