//go:build !linux && !windows

package process

import (
	"bufio"
	"bytes"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

// FindPIDsByName lists processes from ps whose command base name matches pattern
func FindPIDsByName(pattern string) ([]int, error) {
	matcher, err := NewNameMatcher(pattern)
	if err != nil {
		return nil, err
	}

	out, err := exec.Command("ps", "-axo", "pid=,comm=").Output()
	if err != nil {
		return nil, errors.NewProcessError("ps failed", err)
	}
	return parsePSOutput(out, matcher), nil
}

func parsePSOutput(out []byte, matcher *NameMatcher) []int {
	var pids []int
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.SplitN(strings.TrimSpace(scanner.Text()), " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		if matcher.Match(filepath.Base(strings.TrimSpace(fields[1]))) {
			pids = append(pids, pid)
		}
	}
	return pids
}
