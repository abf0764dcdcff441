package launch

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/config"
	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/kiosk"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/probe"
	"github.com/core-tools/hsu-kiosk/pkg/scanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var secondary = display.Descriptor{ID: "HDMI-1", Bounds: display.Rect{X: 1920, Y: 0, Width: 1920, Height: 1080}}

type memoryConfig struct {
	mutex   sync.Mutex
	current config.LaunchConfig
	saves   []config.LaunchConfig
	saveErr error
}

func (m *memoryConfig) Snapshot() config.LaunchConfig {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current.Clone()
}

func (m *memoryConfig) Save(cfg config.LaunchConfig) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.current = cfg.Clone()
	m.saves = append(m.saves, cfg.Clone())
	return nil
}

type fakeWaiter struct {
	found bool
	calls int
	args  [3]time.Duration
}

func (f *fakeWaiter) Wait(ctx context.Context, maxWait, pollInterval, grace time.Duration) bool {
	f.calls++
	f.args = [3]time.Duration{maxWait, pollInterval, grace}
	return f.found
}

type MockProbe struct {
	mock.Mock
}

func (m *MockProbe) Probe(ctx context.Context, url string, retries int) bool {
	return m.Called(url, retries).Bool(0)
}

type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) Scan(ctx context.Context, req scanner.Request) (string, bool) {
	args := m.Called(req)
	return args.String(0), args.Bool(1)
}

type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, req kiosk.Request) (kiosk.Result, error) {
	args := m.Called(req)
	return args.Get(0).(kiosk.Result), args.Error(1)
}

// mapGetter answers 200 for the listed urls and refuses everything else
type mapGetter map[string]bool

func (g mapGetter) Get(ctx context.Context, url string, timeout time.Duration) (int, error) {
	if g[url] {
		return http.StatusOK, nil
	}
	return 0, errors.NewNetworkError("connection refused", nil)
}

func TestNormalizeDashboardURL(t *testing.T) {
	assert.Equal(t, "http://192.168.1.7:8891/#/app/weatherwaves", NormalizeDashboardURL("http://192.168.1.7:8891/", "/#/app/weatherwaves"))
	assert.Equal(t, "http://192.168.1.7:8891/#/app/weatherwaves", NormalizeDashboardURL("http://192.168.1.7:8891", "#/app/weatherwaves"))
	assert.Equal(t, "http://localhost:8891/", NormalizeDashboardURL("http://localhost:8891//", ""))
}

func TestSessionSignal(t *testing.T) {
	var signal *SessionSignal
	assert.False(t, signal.Active(), "nil signal is never active")

	signal = &SessionSignal{}
	signal.Set()
	assert.True(t, signal.Active())
	signal.Clear()
	assert.False(t, signal.Active())
}

func TestSessionSignal_VerifiedOnEveryRead(t *testing.T) {
	present := true
	signal := NewSessionSignal(func() bool { return present })
	assert.False(t, signal.Active(), "not set yet")

	signal.Set()
	assert.True(t, signal.Active())

	present = false
	assert.False(t, signal.Active())

	present = true
	assert.False(t, signal.Active(), "a failed check drops the latch until the next Set")
}

// Scenario A: secondary display present, configured URL valid, kiosk launched with it
func TestRun_ConfiguredURLValid(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://192.168.1.7:8891/#/app/weatherwaves"
	configs := &memoryConfig{current: cfg}

	waiter := &fakeWaiter{found: true}
	prober := &MockProbe{}
	prober.On("Probe", cfg.URL, 1).Return(true).Once()
	scan := &MockScanner{}
	launcher := &MockLauncher{}
	launcher.On("Launch", kiosk.Request{URL: cfg.URL, DisplayIndex: -1, ExtraArgs: nil}).
		Return(kiosk.Result{PID: 100, Display: secondary}, nil).Once()

	signal := &SessionSignal{}
	orchestrator := NewOrchestrator(configs, waiter, prober, scan, launcher, signal, logging.NewNopLogger())
	outcome := orchestrator.Run(context.Background())

	assert.True(t, outcome.Launched)
	assert.Equal(t, StageEnd, outcome.Stage)
	assert.Equal(t, cfg.URL, outcome.URL)
	assert.False(t, outcome.URLDiscovered)
	assert.Equal(t, 100, outcome.PID)
	assert.Equal(t, secondary, outcome.Display)
	assert.NotEmpty(t, outcome.AttemptID)
	assert.NoError(t, outcome.Err)
	assert.True(t, signal.Active())
	assert.Empty(t, configs.saves)
	scan.AssertNotCalled(t, "Scan", mock.Anything)
	launcher.AssertExpectations(t)

	assert.Equal(t, [3]time.Duration{30 * time.Second, 2 * time.Second, 0}, waiter.args)
}

// Scenario B: no secondary display, nothing else runs
func TestRun_NoSecondaryDisplay(t *testing.T) {
	configs := &memoryConfig{current: config.Default()}
	waiter := &fakeWaiter{found: false}
	prober := &MockProbe{}
	scan := &MockScanner{}
	launcher := &MockLauncher{}

	outcome := NewOrchestrator(configs, waiter, prober, scan, launcher, &SessionSignal{}, logging.NewNopLogger()).
		Run(context.Background())

	assert.False(t, outcome.Launched)
	assert.Equal(t, StageCheckDisplay, outcome.Stage)
	assert.Equal(t, "no secondary display detected", outcome.Reason)
	assert.True(t, errors.IsNotFoundError(outcome.Err))
	prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	launcher.AssertNotCalled(t, "Launch", mock.Anything)
}

// Scenario B with the real waiter: the attempt ends once the display budget runs out
func TestRun_NoSecondaryDisplayWaitsFullBudget(t *testing.T) {
	cfg := config.Default()
	cfg.MaxDisplayWaitSeconds = 1
	cfg.DisplayPollIntervalSeconds = 1
	configs := &memoryConfig{current: cfg}

	only := display.EnumeratorFunc(func() ([]display.Descriptor, error) {
		return []display.Descriptor{{ID: "eDP-1", Bounds: display.Rect{Width: 1920, Height: 1080}, Primary: true}}, nil
	})
	launcher := &MockLauncher{}

	start := time.Now()
	outcome := NewOrchestrator(configs, display.NewWaiter(only, logging.NewNopLogger()), &MockProbe{}, &MockScanner{}, launcher, nil, logging.NewNopLogger()).
		Run(context.Background())
	elapsed := time.Since(start)

	assert.False(t, outcome.Launched)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
	launcher.AssertNotCalled(t, "Launch", mock.Anything)
}

// Scenario C: configured URL unreachable, 192.168.1.50 answers, URL rewritten and persisted
func TestRun_DiscoversAndPersistsURL(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://10.0.0.9:8891/#/app/weatherwaves"
	cfg.Scan.IPBase = "192.168.1"
	configs := &memoryConfig{current: cfg}

	getter := mapGetter{"http://192.168.1.50:8891/": true}
	prober := probe.NewProber(getter, probe.DefaultOptions(), logging.NewNopLogger())
	scan := scanner.NewScanner(getter, scanner.DefaultOptions(), logging.NewNopLogger())

	expected := "http://192.168.1.50:8891/#/app/weatherwaves"
	launcher := &MockLauncher{}
	launcher.On("Launch", mock.MatchedBy(func(req kiosk.Request) bool { return req.URL == expected })).
		Return(kiosk.Result{PID: 7, Display: secondary}, nil).Once()

	outcome := NewOrchestrator(configs, &fakeWaiter{found: true}, prober, scan, launcher, nil, logging.NewNopLogger()).
		Run(context.Background())

	require.True(t, outcome.Launched, outcome.String())
	assert.True(t, outcome.URLDiscovered)
	assert.Equal(t, expected, outcome.URL)
	require.Len(t, configs.saves, 1)
	assert.Equal(t, expected, configs.saves[0].URL)
	launcher.AssertExpectations(t)
}

func TestRun_NoURLConfiguredScansWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scan.IPBase = "10.1.1"
	cfg.ScanTimeoutSeconds = 4
	cfg.CustomKiosk = true
	cfg.KioskArgs = "--no-first-run"
	configs := &memoryConfig{current: cfg}

	prober := &MockProbe{}
	scan := &MockScanner{}
	scan.On("Scan", scanner.Request{IPBase: "10.1.1", Ports: []int{8891}, Path: "/", MaxDuration: 4 * time.Second, MaxParallel: 32}).
		Return("http://10.1.1.3:8891/", true).Once()
	launcher := &MockLauncher{}
	launcher.On("Launch", kiosk.Request{URL: "http://10.1.1.3:8891/#/app/weatherwaves", DisplayIndex: -1, ExtraArgs: []string{"--no-first-run"}}).
		Return(kiosk.Result{PID: 1}, nil).Once()

	outcome := NewOrchestrator(configs, &fakeWaiter{found: true}, prober, scan, launcher, nil, logging.NewNopLogger()).
		Run(context.Background())

	assert.True(t, outcome.Launched)
	prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
	scan.AssertExpectations(t)
	launcher.AssertExpectations(t)
}

func TestRun_ScanFindsNothing(t *testing.T) {
	configs := &memoryConfig{current: config.Default()}
	scan := &MockScanner{}
	scan.On("Scan", mock.Anything).Return("", false)
	launcher := &MockLauncher{}

	outcome := NewOrchestrator(configs, &fakeWaiter{found: true}, &MockProbe{}, scan, launcher, nil, logging.NewNopLogger()).
		Run(context.Background())

	assert.False(t, outcome.Launched)
	assert.Equal(t, StageScanFallback, outcome.Stage)
	assert.Equal(t, "no dashboard server found", outcome.Reason)
	assert.Empty(t, configs.saves)
	launcher.AssertNotCalled(t, "Launch", mock.Anything)
}

func TestRun_SaveFailureStillLaunches(t *testing.T) {
	configs := &memoryConfig{current: config.Default(), saveErr: errors.NewIOError("disk full", nil)}
	scan := &MockScanner{}
	scan.On("Scan", mock.Anything).Return("http://localhost:8891/", true)
	launcher := &MockLauncher{}
	launcher.On("Launch", mock.Anything).Return(kiosk.Result{PID: 3}, nil)

	outcome := NewOrchestrator(configs, &fakeWaiter{found: true}, &MockProbe{}, scan, launcher, nil, logging.NewNopLogger()).
		Run(context.Background())

	assert.True(t, outcome.Launched)
	assert.Equal(t, "http://localhost:8891/#/app/weatherwaves", outcome.URL)
}

func TestRun_SignalSkipsDisplayWait(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://dash:8891/"
	configs := &memoryConfig{current: cfg}
	waiter := &fakeWaiter{found: false}
	prober := &MockProbe{}
	prober.On("Probe", cfg.URL, 1).Return(true)
	launcher := &MockLauncher{}
	launcher.On("Launch", mock.Anything).Return(kiosk.Result{PID: 3}, nil)

	signal := &SessionSignal{}
	signal.Set()
	outcome := NewOrchestrator(configs, waiter, prober, &MockScanner{}, launcher, signal, logging.NewNopLogger()).
		Run(context.Background())

	assert.True(t, outcome.Launched)
	assert.Zero(t, waiter.calls)
}

func TestRun_LaunchFailure(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://dash:8891/"
	configs := &memoryConfig{current: cfg}
	prober := &MockProbe{}
	prober.On("Probe", cfg.URL, 1).Return(true)
	launcher := &MockLauncher{}
	launcher.On("Launch", mock.Anything).
		Return(kiosk.Result{BrowserPath: "/opt/edge", PID: 12}, errors.NewTimeoutError("browser window did not appear", nil))

	outcome := NewOrchestrator(configs, &fakeWaiter{found: true}, prober, &MockScanner{}, launcher, nil, logging.NewNopLogger()).
		Run(context.Background())

	assert.False(t, outcome.Launched)
	assert.Equal(t, StageLaunch, outcome.Stage)
	assert.Equal(t, "browser window did not appear", outcome.Reason)
	assert.Equal(t, 12, outcome.PID)
}

func TestRun_RecoversFromPanic(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://dash:8891/"
	configs := &memoryConfig{current: cfg}
	prober := &MockProbe{}
	prober.On("Probe", cfg.URL, 1).Run(func(mock.Arguments) { panic("boom") }).Return(true)

	var outcome Outcome
	require.NotPanics(t, func() {
		outcome = NewOrchestrator(configs, &fakeWaiter{found: true}, prober, &MockScanner{}, &MockLauncher{}, nil, logging.NewNopLogger()).
			Run(context.Background())
	})

	assert.False(t, outcome.Launched)
	assert.Equal(t, StageValidateURL, outcome.Stage)
	assert.True(t, errors.IsInternalError(outcome.Err))
}

func TestRun_CancelledBeforeScan(t *testing.T) {
	configs := &memoryConfig{current: config.Default()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scan := &MockScanner{}

	outcome := NewOrchestrator(configs, &fakeWaiter{found: true}, &MockProbe{}, scan, &MockLauncher{}, nil, logging.NewNopLogger()).
		Run(ctx)

	assert.False(t, outcome.Launched)
	assert.Equal(t, "cancelled", outcome.Reason)
	assert.True(t, errors.IsCancelledError(outcome.Err))
	scan.AssertNotCalled(t, "Scan", mock.Anything)
}

func TestAttemptShortID(t *testing.T) {
	attempt := newAttempt(config.Default())
	assert.Len(t, attempt.ID, 36)
	assert.Len(t, attempt.ShortID(), 8)
}

func TestRun_UnpluggedDisplayWaitsAgain(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://dash:8891/"
	configs := &memoryConfig{current: cfg}
	waiter := &fakeWaiter{found: true}
	prober := &MockProbe{}
	prober.On("Probe", cfg.URL, 1).Return(true)
	launcher := &MockLauncher{}
	launcher.On("Launch", mock.Anything).Return(kiosk.Result{PID: 7, Display: secondary}, nil).Once()

	present := true
	signal := NewSessionSignal(func() bool { return present })
	orchestrator := NewOrchestrator(configs, waiter, prober, &MockScanner{}, launcher, signal, logging.NewNopLogger())

	first := orchestrator.Run(context.Background())
	require.True(t, first.Launched)
	assert.Equal(t, 1, waiter.calls)

	present = false
	waiter.found = false
	second := orchestrator.Run(context.Background())

	assert.False(t, second.Launched)
	assert.Equal(t, StageCheckDisplay, second.Stage)
	assert.Equal(t, 2, waiter.calls, "display wait runs again once the secondary is gone")
	launcher.AssertNumberOfCalls(t, "Launch", 1)
}

func TestRun_PrimaryFallbackClearsSignal(t *testing.T) {
	cfg := config.Default()
	cfg.URL = "http://dash:8891/"
	configs := &memoryConfig{current: cfg}
	waiter := &fakeWaiter{found: true}
	prober := &MockProbe{}
	prober.On("Probe", cfg.URL, 1).Return(true)
	primary := display.Descriptor{ID: "eDP-1", Bounds: display.Rect{Width: 1920, Height: 1080}, Primary: true}
	launcher := &MockLauncher{}
	launcher.On("Launch", mock.Anything).Return(kiosk.Result{PID: 7, Display: primary}, nil).Once()
	launcher.On("Launch", mock.Anything).Return(kiosk.Result{PID: 8, Display: secondary}, nil).Once()

	signal := &SessionSignal{}
	orchestrator := NewOrchestrator(configs, waiter, prober, &MockScanner{}, launcher, signal, logging.NewNopLogger())

	require.True(t, orchestrator.Run(context.Background()).Launched)
	assert.False(t, signal.Active())

	require.True(t, orchestrator.Run(context.Background()).Launched)
	assert.Equal(t, 2, waiter.calls)
	assert.True(t, signal.Active())
}
