//go:build !linux && !windows

package window

import (
	"runtime"

	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

type unsupportedController struct{}

// NewSystemController returns a controller whose every call fails as unsupported
func NewSystemController() Controller {
	return unsupportedController{}
}

func unsupported() error {
	return errors.NewUnsupportedError("window control is not implemented", nil).WithContext("os", runtime.GOOS)
}

func (unsupportedController) FindWindow(Query) (Handle, error)               { return 0, unsupported() }
func (unsupportedController) MoveResize(Handle, display.Rect) error          { return unsupported() }
func (unsupportedController) Show(Handle, ShowMode) error                    { return unsupported() }
func (unsupportedController) SetForeground(Handle) error                     { return unsupported() }
func (unsupportedController) SendFullscreenToggle(Handle) error              { return unsupported() }
