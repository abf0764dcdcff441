//go:build windows

package process

import (
	"strings"
	"unsafe"

	"github.com/core-tools/hsu-kiosk/pkg/errors"

	"golang.org/x/sys/windows"
)

// FindPIDsByName lists processes whose image name matches pattern. A pattern
// without an extension also matches the .exe image.
func FindPIDsByName(pattern string) ([]int, error) {
	matcher, err := NewNameMatcher(pattern)
	if err != nil {
		return nil, err
	}
	withExe := !strings.Contains(pattern, ".")

	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, errors.NewProcessError("failed to snapshot processes", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var pids []int
	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		image := windows.UTF16ToString(entry.ExeFile[:])
		if matcher.Match(image) || (withExe && matcher.Match(strings.TrimSuffix(strings.ToLower(image), ".exe"))) {
			pids = append(pids, int(entry.ProcessID))
		}
	}
	return pids, nil
}
