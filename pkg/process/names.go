package process

import (
	"strings"

	"github.com/core-tools/hsu-kiosk/pkg/errors"

	"github.com/gobwas/glob"
)

// NameMatcher matches process image names against a glob pattern, ignoring case.
// A pattern without wildcards is an exact name.
type NameMatcher struct {
	pattern string
	glob    glob.Glob
}

func NewNameMatcher(pattern string) (*NameMatcher, error) {
	if pattern == "" {
		return nil, errors.NewValidationError("process name pattern cannot be empty", nil)
	}
	compiled, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, errors.NewValidationError("invalid process name pattern", err).WithContext("pattern", pattern)
	}
	return &NameMatcher{pattern: pattern, glob: compiled}, nil
}

func (m *NameMatcher) Match(name string) bool {
	return m.glob.Match(strings.ToLower(name))
}

func (m *NameMatcher) String() string {
	return m.pattern
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
