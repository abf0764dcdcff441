//go:build !linux && !windows

package display

import (
	"runtime"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

// NewSystemEnumerator reports an unsupported platform on every call
func NewSystemEnumerator() Enumerator {
	return EnumeratorFunc(func() ([]Descriptor, error) {
		return nil, errors.NewUnsupportedError("display enumeration is not implemented", nil).
			WithContext("os", runtime.GOOS)
	})
}
