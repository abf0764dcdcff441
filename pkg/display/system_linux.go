//go:build linux

package display

// NewSystemEnumerator returns the X11 enumerator
func NewSystemEnumerator() Enumerator {
	return NewXRandrEnumerator(nil)
}
