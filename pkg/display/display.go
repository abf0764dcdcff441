package display

import (
	"fmt"
)

// Rect is a rectangle in virtual desktop coordinates. X and Y may be negative
// when a display sits left of or above the primary one.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Descriptor is a point-in-time snapshot of one display
type Descriptor struct {
	ID      string
	Bounds  Rect
	Primary bool
}

func (d Descriptor) String() string {
	kind := "secondary"
	if d.Primary {
		kind = "primary"
	}
	return fmt.Sprintf("%s %s %dx%d@%d,%d", d.ID, kind, d.Bounds.Width, d.Bounds.Height, d.Bounds.X, d.Bounds.Y)
}

// Enumerator queries the OS display list. Implementations must not cache.
type Enumerator interface {
	ListDisplays() ([]Descriptor, error)
}

// EnumeratorFunc adapts a function to Enumerator
type EnumeratorFunc func() ([]Descriptor, error)

func (f EnumeratorFunc) ListDisplays() ([]Descriptor, error) {
	return f()
}

// CountNonPrimary returns the number of displays not flagged primary
func CountNonPrimary(displays []Descriptor) int {
	count := 0
	for _, d := range displays {
		if !d.Primary {
			count++
		}
	}
	return count
}

// SecondaryPresent does one live enumeration and reports whether a
// non-primary display exists. Enumeration errors count as absent.
func SecondaryPresent(enumerator Enumerator) bool {
	displays, err := enumerator.ListDisplays()
	return err == nil && CountNonPrimary(displays) > 0
}

// SelectTarget picks the display for the kiosk window. A valid explicit index
// wins; otherwise the first non-primary display, falling back to the first one.
// The returned string says which rule applied.
func SelectTarget(displays []Descriptor, index int) (Descriptor, string, bool) {
	if len(displays) == 0 {
		return Descriptor{}, "", false
	}
	if index >= 0 && index < len(displays) {
		return displays[index], fmt.Sprintf("configured index %d", index), true
	}
	for _, d := range displays {
		if !d.Primary {
			return d, "first non-primary display", true
		}
	}
	return displays[0], "no non-primary display, using first display", true
}
