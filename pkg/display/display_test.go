package display

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	primary   = Descriptor{ID: "eDP-1", Bounds: Rect{0, 0, 1920, 1080}, Primary: true}
	secondary = Descriptor{ID: "VIRTUAL-1", Bounds: Rect{1920, 0, 2560, 1600}}
)

type recordingLogger struct {
	mutex sync.Mutex
	lines []string
}

func (l *recordingLogger) LogLevelf(level int, format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}
func (l *recordingLogger) Debugf(format string, args ...interface{}) { l.LogLevelf(0, format, args...) }
func (l *recordingLogger) Infof(format string, args ...interface{})  { l.LogLevelf(1, format, args...) }
func (l *recordingLogger) Warnf(format string, args ...interface{})  { l.LogLevelf(2, format, args...) }
func (l *recordingLogger) Errorf(format string, args ...interface{}) { l.LogLevelf(3, format, args...) }

func (l *recordingLogger) count(prefix string) int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	n := 0
	for _, line := range l.lines {
		if len(line) >= len(prefix) && line[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// scriptedEnumerator returns lists[i] on call i, repeating the last one
type scriptedEnumerator struct {
	mutex sync.Mutex
	lists [][]Descriptor
	calls int
}

func (s *scriptedEnumerator) ListDisplays() ([]Descriptor, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	i := s.calls
	if i >= len(s.lists) {
		i = len(s.lists) - 1
	}
	s.calls++
	return s.lists[i], nil
}

func TestWaiter_ImmediateSecondary(t *testing.T) {
	enumerator := &scriptedEnumerator{lists: [][]Descriptor{{primary, secondary}}}
	waiter := NewWaiter(enumerator, logging.NewNopLogger())

	start := time.Now()
	found := waiter.Wait(context.Background(), 5*time.Second, time.Second, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, found)
	assert.Equal(t, 1, enumerator.calls)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond, "must not sleep past the grace period")
	assert.Equal(t, []Descriptor{primary, secondary}, waiter.Displays())
}

func TestWaiter_AppearsLater(t *testing.T) {
	enumerator := &scriptedEnumerator{lists: [][]Descriptor{{primary}, {primary}, {primary, secondary}}}
	logger := &recordingLogger{}
	waiter := NewWaiter(enumerator, logger)

	found := waiter.Wait(context.Background(), 2*time.Second, 20*time.Millisecond, 0)

	assert.True(t, found)
	assert.Equal(t, 3, enumerator.calls)
	assert.Equal(t, 2, logger.count("Display count changed"), "logs only on change")
}

func TestWaiter_TimesOut(t *testing.T) {
	enumerator := &scriptedEnumerator{lists: [][]Descriptor{{primary}}}
	waiter := NewWaiter(enumerator, logging.NewNopLogger())

	maxWait := 200 * time.Millisecond
	poll := 50 * time.Millisecond

	start := time.Now()
	found := waiter.Wait(context.Background(), maxWait, poll, 0)
	elapsed := time.Since(start)

	assert.False(t, found)
	assert.GreaterOrEqual(t, elapsed, maxWait)
	assert.Less(t, elapsed, maxWait+poll+100*time.Millisecond)
}

func TestWaiter_EnumerationErrorsAreNegative(t *testing.T) {
	calls := 0
	enumerator := EnumeratorFunc(func() ([]Descriptor, error) {
		calls++
		return nil, errors.New("no display server")
	})
	logger := &recordingLogger{}
	waiter := NewWaiter(enumerator, logger)

	found := waiter.Wait(context.Background(), 100*time.Millisecond, 20*time.Millisecond, 0)

	assert.False(t, found)
	assert.Greater(t, calls, 1)
	assert.Equal(t, 1, logger.count("Display enumeration failed"), "repeated errors are logged once")
}

func TestWaiter_Cancelled(t *testing.T) {
	enumerator := &scriptedEnumerator{lists: [][]Descriptor{{primary}}}
	waiter := NewWaiter(enumerator, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	assert.False(t, waiter.Wait(ctx, 10*time.Second, time.Second, 0))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSelectTarget(t *testing.T) {
	tests := []struct {
		name     string
		displays []Descriptor
		index    int
		expected Descriptor
		ok       bool
	}{
		{"auto prefers non-primary", []Descriptor{primary, secondary}, -1, secondary, true},
		{"auto falls back to first", []Descriptor{primary}, -1, primary, true},
		{"explicit index", []Descriptor{primary, secondary}, 0, primary, true},
		{"out of range index uses policy", []Descriptor{primary, secondary}, 5, secondary, true},
		{"empty list", nil, -1, Descriptor{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, ok := SelectTarget(tt.displays, tt.index)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
			if ok {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestParseXRandrMonitors(t *testing.T) {
	out := []byte(`Monitors: 3
 0: +*eDP-1 1920/344x1080/194+0+0  eDP-1
 1: +HDMI-1 2560/597x1440/336+1920+0  HDMI-1
 2: +VIRTUAL1 1280/0x800/0-1280+200  VIRTUAL1
`)
	displays, err := ParseXRandrMonitors(out)
	require.NoError(t, err)
	require.Len(t, displays, 3)

	assert.Equal(t, Descriptor{ID: "eDP-1", Bounds: Rect{0, 0, 1920, 1080}, Primary: true}, displays[0])
	assert.Equal(t, Descriptor{ID: "HDMI-1", Bounds: Rect{1920, 0, 2560, 1440}}, displays[1])
	assert.Equal(t, Descriptor{ID: "VIRTUAL1", Bounds: Rect{-1280, 200, 1280, 800}}, displays[2])
	assert.Equal(t, 2, CountNonPrimary(displays))
}

func TestParseXRandrMonitors_NoPrimarySet(t *testing.T) {
	single, err := ParseXRandrMonitors([]byte("Monitors: 1\n 0: +eDP-1 1920/344x1080/194+0+0  eDP-1\n"))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.True(t, single[0].Primary, "monitor at the origin is the primary")
	assert.Equal(t, 0, CountNonPrimary(single))

	pair, err := ParseXRandrMonitors([]byte(`Monitors: 2
 0: +HDMI-1 2560/597x1440/336+1920+0  HDMI-1
 1: +eDP-1 1920/344x1080/194+0+0  eDP-1
`))
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.False(t, pair[0].Primary)
	assert.True(t, pair[1].Primary)
	assert.Equal(t, 1, CountNonPrimary(pair))

	offset, err := ParseXRandrMonitors([]byte("Monitors: 1\n 0: +DP-2 1280/0x800/0+100+50  DP-2\n"))
	require.NoError(t, err)
	assert.True(t, offset[0].Primary, "first monitor when none sits at the origin")
}

func TestWaiter_SinglePanelWithoutRandRPrimary(t *testing.T) {
	enumerator := NewXRandrEnumerator(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("Monitors: 1\n 0: +eDP-1 1920/344x1080/194+0+0  eDP-1\n"), nil
	})
	waiter := NewWaiter(enumerator, logging.NewNopLogger())

	assert.False(t, waiter.Wait(context.Background(), 100*time.Millisecond, 20*time.Millisecond, 0))
}

func TestSecondaryPresent(t *testing.T) {
	assert.True(t, SecondaryPresent(EnumeratorFunc(func() ([]Descriptor, error) {
		return []Descriptor{primary, secondary}, nil
	})))
	assert.False(t, SecondaryPresent(EnumeratorFunc(func() ([]Descriptor, error) {
		return []Descriptor{primary}, nil
	})))
	assert.False(t, SecondaryPresent(EnumeratorFunc(func() ([]Descriptor, error) {
		return nil, errors.New("no display server")
	})))
}

func TestXRandrEnumerator_CommandFailure(t *testing.T) {
	enumerator := NewXRandrEnumerator(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "xrandr", name)
		return nil, errors.New("cannot open display")
	})

	_, err := enumerator.ListDisplays()
	assert.Error(t, err)
}
