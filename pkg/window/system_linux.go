//go:build linux

package window

import (
	"github.com/core-tools/hsu-kiosk/pkg/process"
)

// NewSystemController returns the xdotool controller
func NewSystemController() Controller {
	return NewX11Controller(nil, process.FindPIDsByName)
}
