package window

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

const xdotoolTimeout = 3 * time.Second

// CommandRunner runs an external tool and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// X11Controller drives windows through xdotool
type X11Controller struct {
	run      CommandRunner
	findPIDs func(name string) ([]int, error)
}

func NewX11Controller(run CommandRunner, findPIDs func(name string) ([]int, error)) *X11Controller {
	if run == nil {
		run = runCommand
	}
	return &X11Controller{run: run, findPIDs: findPIDs}
}

func (c *X11Controller) xdotool(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), xdotoolTimeout)
	defer cancel()
	out, err := c.run(ctx, "xdotool", args...)
	if err != nil {
		return out, errors.NewProcessError("xdotool failed", err).WithContext("args", args)
	}
	return out, nil
}

// FindWindow searches the spawned pid, then the window class named like the
// browser process, then each pid matching that name.
func (c *X11Controller) FindWindow(query Query) (Handle, error) {
	if query.PID > 0 {
		if handle := c.searchWindow("--pid", strconv.Itoa(query.PID)); handle != 0 {
			return handle, nil
		}
	}
	if query.ProcessName == "" {
		return 0, nil
	}

	if pattern, ok := classPattern(query.ProcessName); ok {
		if handle := c.searchWindow("--classname", pattern); handle != 0 {
			return handle, nil
		}
	}

	if c.findPIDs == nil {
		return 0, nil
	}
	named, err := c.findPIDs(query.ProcessName)
	if err != nil {
		return 0, err
	}
	for _, pid := range named {
		if pid == query.PID {
			continue
		}
		if handle := c.searchWindow("--pid", strconv.Itoa(pid)); handle != 0 {
			return handle, nil
		}
	}
	return 0, nil
}

func (c *X11Controller) searchWindow(kind, value string) Handle {
	// exit status 1 just means no match
	out, err := c.xdotool("search", "--onlyvisible", kind, value)
	if err != nil && len(out) == 0 {
		return 0
	}
	return firstWindowID(out)
}

// classPattern turns a process name glob into an anchored xdotool regex.
// Patterns with classes or alternation are left to the pid search.
func classPattern(glob string) (string, bool) {
	if strings.ContainsAny(glob, "[]{}\\") {
		return "", false
	}
	var b strings.Builder
	b.WriteByte('^')
	for _, part := range strings.SplitAfter(glob, "") {
		switch part {
		case "*":
			b.WriteString(".*")
		case "?":
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(part))
		}
	}
	b.WriteByte('$')
	return b.String(), true
}

func firstWindowID(out []byte) Handle {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		id, err := strconv.ParseUint(string(bytes.TrimSpace(scanner.Bytes())), 10, 64)
		if err == nil && id != 0 {
			return Handle(id)
		}
	}
	return 0
}

func (c *X11Controller) MoveResize(handle Handle, bounds display.Rect) error {
	id := handleArg(handle)
	if _, err := c.xdotool("windowmove", id, strconv.Itoa(bounds.X), strconv.Itoa(bounds.Y)); err != nil {
		return err
	}
	_, err := c.xdotool("windowsize", id, strconv.Itoa(bounds.Width), strconv.Itoa(bounds.Height))
	return err
}

func (c *X11Controller) Show(handle Handle, mode ShowMode) error {
	id := handleArg(handle)
	switch mode {
	case ShowMaximize:
		_, err := c.xdotool("windowstate", "--add", "MAXIMIZED_VERT,MAXIMIZED_HORZ", id)
		return err
	case ShowRestore:
		if _, err := c.xdotool("windowstate", "--remove", "MAXIMIZED_VERT,MAXIMIZED_HORZ", id); err != nil {
			return err
		}
		_, err := c.xdotool("windowmap", id)
		return err
	default:
		_, err := c.xdotool("windowmap", id)
		return err
	}
}

func (c *X11Controller) SetForeground(handle Handle) error {
	_, err := c.xdotool("windowactivate", "--sync", handleArg(handle))
	return err
}

func (c *X11Controller) SendFullscreenToggle(handle Handle) error {
	_, err := c.xdotool("key", "--window", handleArg(handle), "F11")
	return err
}

func handleArg(handle Handle) string {
	return strconv.FormatUint(uint64(handle), 10)
}
