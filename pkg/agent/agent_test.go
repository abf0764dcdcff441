package agent

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/launch"
	"github.com/core-tools/hsu-kiosk/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSequence blocks every run until release is closed
type gatedSequence struct {
	release chan struct{}
	runs    int32
}

func newGatedSequence() *gatedSequence {
	return &gatedSequence{release: make(chan struct{})}
}

func (s *gatedSequence) Run(ctx context.Context) launch.Outcome {
	n := atomic.AddInt32(&s.runs, 1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return launch.Outcome{AttemptID: strconv.Itoa(int(n)), Stage: launch.StageCheckDisplay, Reason: "cancelled"}
	}
	return launch.Outcome{AttemptID: strconv.Itoa(int(n)), Stage: launch.StageEnd, Launched: true, URL: "http://dash/", PID: 10}
}

type countingReloader struct {
	reloads int32
}

func (c *countingReloader) Reload() error {
	atomic.AddInt32(&c.reloads, 1)
	return nil
}

type memoryFiles struct {
	mutex   sync.Mutex
	pid     int
	port    int
	removed bool
}

func (m *memoryFiles) WritePIDFile(pid int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.pid = pid
	return nil
}

func (m *memoryFiles) ReadPIDFile() (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.pid == 0 {
		return 0, errors.NewNotFoundError("PID file not found", nil)
	}
	return m.pid, nil
}

func (m *memoryFiles) WritePortFile(port int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.port = port
	return nil
}

func (m *memoryFiles) Remove() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.removed = true
}

func (m *memoryFiles) currentPort() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.port
}

func newTestRunner(sequence Sequence) (*Runner, *memoryFiles) {
	files := &memoryFiles{}
	return NewRunner(sequence, &countingReloader{}, files, logging.NewNopLogger()), files
}

func TestRunner_SingleFlight(t *testing.T) {
	sequence := newGatedSequence()
	runner, _ := newTestRunner(sequence)

	assert.True(t, runner.Trigger(context.Background(), "test"))
	assert.True(t, runner.Busy())
	assert.False(t, runner.Trigger(context.Background(), "test"), "second trigger rejected while running")

	close(sequence.release)
	runner.Wait()

	assert.False(t, runner.Busy())
	assert.True(t, runner.Trigger(context.Background(), "test"))
	runner.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&sequence.runs))
	assert.Equal(t, 2, runner.Status().Attempts)
}

func TestRunner_RunOnce(t *testing.T) {
	sequence := newGatedSequence()
	close(sequence.release)
	runner, _ := newTestRunner(sequence)

	outcome := runner.RunOnce(context.Background())
	assert.True(t, outcome.Launched)

	status := runner.Status()
	require.NotNil(t, status.Last)
	assert.Equal(t, "END", status.Last.Stage)
	assert.Equal(t, 10, status.Last.PID)
	assert.False(t, status.Busy)
}

func TestHandler_LaunchAndConflict(t *testing.T) {
	sequence := newGatedSequence()
	runner, _ := newTestRunner(sequence)
	handler := runner.Handler(context.Background())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, LaunchPath, nil))
	assert.Equal(t, http.StatusAccepted, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, LaunchPath+"?source=hotkey", nil))
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, LaunchPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	assert.Equal(t, http.MethodPost, recorder.Header().Get("Allow"))

	close(sequence.release)
	runner.Wait()
}

func TestHandler_Status(t *testing.T) {
	sequence := newGatedSequence()
	close(sequence.release)
	runner, _ := newTestRunner(sequence)
	runner.RunOnce(context.Background())

	recorder := httptest.NewRecorder()
	runner.Handler(context.Background()).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, StatusPath, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var status Status
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Attempts)
	require.NotNil(t, status.Last)
	assert.True(t, status.Last.Launched)
	assert.Equal(t, "http://dash/", status.Last.URL)
}

func TestSendTrigger(t *testing.T) {
	sequence := newGatedSequence()
	runner, _ := newTestRunner(sequence)
	server := httptest.NewServer(runner.Handler(context.Background()))
	defer server.Close()

	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	require.NoError(t, SendTrigger(context.Background(), port, "cli"))
	err = SendTrigger(context.Background(), port, "cli")
	assert.True(t, errors.IsUnavailableError(err))

	close(sequence.release)
	runner.Wait()
}

func TestSendTrigger_NoAgent(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	err = SendTrigger(context.Background(), port, "cli")
	assert.True(t, errors.IsNetworkError(err))
}

func TestServe_StartupRunAndRunDuration(t *testing.T) {
	sequence := newGatedSequence()
	close(sequence.release)
	runner, files := newTestRunner(sequence)

	done := make(chan error, 1)
	go func() {
		done <- runner.Serve(context.Background(), Options{Startup: true, RunDuration: 500 * time.Millisecond})
	}()

	require.Eventually(t, func() bool { return files.currentPort() != 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return runner.Status().Attempts == 1 && !runner.Busy() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, SendTrigger(context.Background(), files.currentPort(), "test"))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop after its run duration")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&sequence.runs))
	assert.True(t, files.removed)
}

func TestServe_CancelsRunningAttemptOnStop(t *testing.T) {
	sequence := newGatedSequence()
	runner, _ := newTestRunner(sequence)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Serve(ctx, Options{Startup: true}) }()

	require.Eventually(t, runner.Busy, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not stop")
	}
	status := runner.Status()
	require.NotNil(t, status.Last)
	assert.Equal(t, "cancelled", status.Last.Reason)
}

func TestServe_RefusesSecondInstance(t *testing.T) {
	runner, files := newTestRunner(newGatedSequence())
	files.pid = 99999
	runner.isRunning = func(pid int) (bool, error) { return pid == 99999, nil }

	err := runner.Serve(context.Background(), Options{})
	assert.True(t, errors.IsUnavailableError(err))
	assert.Zero(t, files.currentPort())
}

func TestServe_IgnoresStalePIDFile(t *testing.T) {
	runner, files := newTestRunner(newGatedSequence())
	files.pid = 99999
	runner.isRunning = func(int) (bool, error) { return false, nil }

	err := runner.Serve(context.Background(), Options{RunDuration: 100 * time.Millisecond})
	assert.NoError(t, err)
	assert.NotZero(t, files.currentPort())
}
