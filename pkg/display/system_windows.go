//go:build windows

package display

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/core-tools/hsu-kiosk/pkg/errors"

	"golang.org/x/sys/windows"
)

const monitorInfoPrimary = 0x00000001

type monitorInfoEx struct {
	Size    uint32
	Monitor windows.Rect
	Work    windows.Rect
	Flags   uint32
	Device  [32]uint16
}

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procEnumDisplayMonitors = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")

	// Windows limits the number of callbacks a process may create, so there is exactly one
	enumMonitorCallback = windows.NewCallback(enumMonitor)
	enumMutex           sync.Mutex
	enumResult          []Descriptor
)

type win32Enumerator struct{}

// NewSystemEnumerator returns the Win32 monitor enumerator
func NewSystemEnumerator() Enumerator {
	return win32Enumerator{}
}

func (win32Enumerator) ListDisplays() ([]Descriptor, error) {
	enumMutex.Lock()
	defer enumMutex.Unlock()

	enumResult = nil
	ret, _, callErr := procEnumDisplayMonitors.Call(0, 0, enumMonitorCallback, 0)
	if ret == 0 {
		return nil, errors.NewDiscoveryError("EnumDisplayMonitors failed", callErr)
	}
	return append([]Descriptor(nil), enumResult...), nil
}

func enumMonitor(hMonitor, hdc, clip, data uintptr) uintptr {
	var info monitorInfoEx
	info.Size = uint32(unsafe.Sizeof(info))
	ret, _, _ := procGetMonitorInfoW.Call(hMonitor, uintptr(unsafe.Pointer(&info)))
	if ret == 0 {
		// keep enumerating the remaining monitors
		return 1
	}

	id := windows.UTF16ToString(info.Device[:])
	if id == "" {
		id = fmt.Sprintf("monitor-%d", len(enumResult))
	}
	enumResult = append(enumResult, Descriptor{
		ID: id,
		Bounds: Rect{
			X:      int(info.Monitor.Left),
			Y:      int(info.Monitor.Top),
			Width:  int(info.Monitor.Right - info.Monitor.Left),
			Height: int(info.Monitor.Bottom - info.Monitor.Top),
		},
		Primary: info.Flags&monitorInfoPrimary != 0,
	})
	return 1
}
