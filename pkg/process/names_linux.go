//go:build linux

package process

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

// the kernel truncates /proc/<pid>/comm to this many bytes
const commLength = 15

// FindPIDsByName lists processes whose command name (/proc/<pid>/comm) matches pattern
func FindPIDsByName(pattern string) ([]int, error) {
	if !hasWildcard(pattern) && len(pattern) > commLength {
		pattern = pattern[:commLength]
	}
	matcher, err := NewNameMatcher(pattern)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, errors.NewIOError("failed to read /proc", err)
	}

	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if matcher.Match(strings.TrimSpace(string(comm))) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}
