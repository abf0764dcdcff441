package launch

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/config"
	"github.com/core-tools/hsu-kiosk/pkg/display"

	"github.com/google/uuid"
)

type Stage string

const (
	StageStart        Stage = "START"
	StageCheckDisplay Stage = "CHECK_DISPLAY"
	StageValidateURL  Stage = "VALIDATE_URL"
	StageScanFallback Stage = "SCAN_FALLBACK"
	StageLaunch       Stage = "LAUNCH"
	StageEnd          Stage = "END"
)

// Attempt is the state of one run of the sequence. It is never persisted.
type Attempt struct {
	ID      string
	Config  config.LaunchConfig
	URL     string
	Display display.Descriptor
	PID     int
	started time.Time
}

func newAttempt(cfg config.LaunchConfig) *Attempt {
	return &Attempt{
		ID:      uuid.NewString(),
		Config:  cfg,
		started: time.Now(),
	}
}

// ShortID is the first block of the attempt id, used as a log prefix
func (a *Attempt) ShortID() string {
	if i := strings.IndexByte(a.ID, '-'); i > 0 {
		return a.ID[:i]
	}
	return a.ID
}

// Outcome summarizes how an attempt ended. Stage is the last stage entered;
// a successful attempt ends in StageEnd with Launched set.
type Outcome struct {
	AttemptID     string
	Stage         Stage
	Launched      bool
	Reason        string
	URL           string
	URLDiscovered bool
	Display       display.Descriptor
	PID           int
	Duration      time.Duration
	Err           error
}

func (o Outcome) String() string {
	if o.Launched {
		return fmt.Sprintf("launched, url: %s, display: %s, pid: %d, duration: %v",
			o.URL, o.Display, o.PID, o.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("aborted at %s, reason: %s, duration: %v", o.Stage, o.Reason, o.Duration.Round(time.Millisecond))
}

// SessionSignal says a secondary display is active in this session, which lets
// attempts skip the display wait. When built with a verify func the latched
// value is rechecked on every read and dropped once verify reports false.
type SessionSignal struct {
	active atomic.Bool
	verify func() bool
}

// NewSessionSignal returns a signal backed by verify; nil verify trusts the latch
func NewSessionSignal(verify func() bool) *SessionSignal {
	return &SessionSignal{verify: verify}
}

func (s *SessionSignal) Active() bool {
	if s == nil || !s.active.Load() {
		return false
	}
	if s.verify != nil && !s.verify() {
		s.active.Store(false)
		return false
	}
	return true
}

func (s *SessionSignal) Set() {
	if s != nil {
		s.active.Store(true)
	}
}

func (s *SessionSignal) Clear() {
	if s != nil {
		s.active.Store(false)
	}
}

// NormalizeDashboardURL joins a discovered server base with the dashboard app path
// without doubling the slash between them
func NormalizeDashboardURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		return base + "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
