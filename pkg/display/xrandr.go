package display

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

// " 1: +*HDMI-1 1920/531x1080/299+1920+0  HDMI-1"
var monitorLine = regexp.MustCompile(`^\s*\d+:\s+\+?(\*?)(\S+)\s+(\d+)/\d+x(\d+)/\d+([+-]\d+)([+-]\d+)`)

const xrandrTimeout = 3 * time.Second

// CommandRunner runs an external tool and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// XRandrEnumerator lists X11 monitors through `xrandr --listmonitors`
type XRandrEnumerator struct {
	run CommandRunner
}

func NewXRandrEnumerator(run CommandRunner) *XRandrEnumerator {
	if run == nil {
		run = runCommand
	}
	return &XRandrEnumerator{run: run}
}

func (e *XRandrEnumerator) ListDisplays() ([]Descriptor, error) {
	ctx, cancel := context.WithTimeout(context.Background(), xrandrTimeout)
	defer cancel()

	out, err := e.run(ctx, "xrandr", "--listmonitors")
	if err != nil {
		return nil, errors.NewDiscoveryError("xrandr failed", err)
	}
	return ParseXRandrMonitors(out)
}

// ParseXRandrMonitors parses `xrandr --listmonitors` output
func ParseXRandrMonitors(out []byte) ([]Descriptor, error) {
	var displays []Descriptor
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := monitorLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		width, _ := strconv.Atoi(m[3])
		height, _ := strconv.Atoi(m[4])
		x, _ := strconv.Atoi(m[5])
		y, _ := strconv.Atoi(m[6])
		displays = append(displays, Descriptor{
			ID:      m[2],
			Bounds:  Rect{X: x, Y: y, Width: width, Height: height},
			Primary: m[1] == "*",
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIOError("failed to read xrandr output", err)
	}
	markImplicitPrimary(displays)
	return displays, nil
}

// markImplicitPrimary flags a primary when RandR has none set: the monitor at
// the origin, else the first one
func markImplicitPrimary(displays []Descriptor) {
	if len(displays) == 0 {
		return
	}
	for _, d := range displays {
		if d.Primary {
			return
		}
	}
	for i := range displays {
		if displays[i].Bounds.X == 0 && displays[i].Bounds.Y == 0 {
			displays[i].Primary = true
			return
		}
	}
	displays[0].Primary = true
}
