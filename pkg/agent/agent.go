package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/launch"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/process"

	"github.com/phayes/freeport"
)

const shutdownTimeout = 5 * time.Second

// Sequence is one launch attempt
type Sequence interface {
	Run(ctx context.Context) launch.Outcome
}

// Reloader re-reads the configuration before a signalled relaunch
type Reloader interface {
	Reload() error
}

// RuntimeFiles stores the PID and control port of the resident agent
type RuntimeFiles interface {
	WritePIDFile(pid int) error
	ReadPIDFile() (int, error)
	WritePortFile(port int) error
	Remove()
}

type Options struct {
	// Startup runs the sequence as soon as the agent is up
	Startup bool

	// Port is the loopback control port; 0 picks a free one
	Port int

	// RunDuration stops the agent after this long; 0 runs until signalled
	RunDuration time.Duration
}

// Runner owns the launch sequence and makes sure at most one attempt runs at a time
type Runner struct {
	sequence  Sequence
	reloader  Reloader
	files     RuntimeFiles
	logger    logging.Logger
	isRunning func(pid int) (bool, error)

	busy    atomic.Bool
	wg      sync.WaitGroup
	mutex   sync.Mutex
	last    *launch.Outcome
	started int
}

func NewRunner(sequence Sequence, reloader Reloader, files RuntimeFiles, logger logging.Logger) *Runner {
	return &Runner{
		sequence:  sequence,
		reloader:  reloader,
		files:     files,
		logger:    logger,
		isRunning: process.IsProcessRunning,
	}
}

// RunOnce runs the sequence in the calling goroutine
func (r *Runner) RunOnce(ctx context.Context) launch.Outcome {
	r.busy.Store(true)
	defer r.busy.Store(false)

	outcome := r.sequence.Run(ctx)
	r.record(outcome)
	return outcome
}

// Trigger starts an attempt in the background unless one is already running.
// It reports whether an attempt was started.
func (r *Runner) Trigger(ctx context.Context, source string) bool {
	if !r.busy.CompareAndSwap(false, true) {
		r.logger.Warnf("Launch already in progress, trigger ignored, source: %s", source)
		return false
	}

	r.logger.Infof("Launch triggered, source: %s", source)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)
		r.record(r.sequence.Run(ctx))
	}()
	return true
}

// Busy reports whether an attempt is running
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// Wait blocks until triggered attempts have finished
func (r *Runner) Wait() {
	r.wg.Wait()
}

type Status struct {
	Busy     bool           `json:"busy"`
	Attempts int            `json:"attempts"`
	Last     *OutcomeStatus `json:"last,omitempty"`
}

type OutcomeStatus struct {
	AttemptID  string `json:"attempt_id"`
	Stage      string `json:"stage"`
	Launched   bool   `json:"launched"`
	Reason     string `json:"reason,omitempty"`
	URL        string `json:"url,omitempty"`
	Discovered bool   `json:"url_discovered,omitempty"`
	Display    string `json:"display,omitempty"`
	PID        int    `json:"pid,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (r *Runner) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	status := Status{Busy: r.busy.Load(), Attempts: r.started}
	if r.last != nil {
		last := r.last
		status.Last = &OutcomeStatus{
			AttemptID:  last.AttemptID,
			Stage:      string(last.Stage),
			Launched:   last.Launched,
			Reason:     last.Reason,
			URL:        last.URL,
			Discovered: last.URLDiscovered,
			PID:        last.PID,
			DurationMs: last.Duration.Milliseconds(),
		}
		if last.Display.ID != "" {
			status.Last.Display = last.Display.String()
		}
	}
	return status
}

func (r *Runner) record(outcome launch.Outcome) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.last = &outcome
	r.started++
}

// Serve runs the resident agent: it serves the loopback trigger endpoint,
// relaunches on the reload signal and returns on SIGINT/SIGTERM, when ctx
// ends or after RunDuration.
func (r *Runner) Serve(ctx context.Context, options Options) error {
	if options.RunDuration > 0 {
		r.logger.Infof("Using run duration: %v", options.RunDuration)
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, options.RunDuration)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.claimInstance(); err != nil {
		return err
	}

	listener, port, err := listenLoopback(options.Port)
	if err != nil {
		return err
	}

	if err := r.files.WritePIDFile(os.Getpid()); err != nil {
		listener.Close()
		return err
	}
	if err := r.files.WritePortFile(port); err != nil {
		listener.Close()
		r.files.Remove()
		return err
	}
	defer r.files.Remove()

	server := &http.Server{
		Handler:           r.Handler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	reload := make(chan os.Signal, 1)
	if sigs := reloadSignals(); len(sigs) > 0 {
		signal.Notify(reload, sigs...)
		defer signal.Stop(reload)
	}

	r.logger.Infof("Kiosk agent ready, pid: %d, control: %s", os.Getpid(), listener.Addr())

	if options.Startup {
		r.Trigger(ctx, "startup")
	}

	var result error
loop:
	for {
		select {
		case received := <-stop:
			r.logger.Infof("Kiosk agent received signal: %v", received)
			break loop
		case received := <-reload:
			r.logger.Infof("Kiosk agent received signal: %v, reloading configuration", received)
			if err := r.reloader.Reload(); err != nil {
				r.logger.Errorf("Configuration reload failed, keeping previous configuration, error: %v", err)
			}
			r.Trigger(ctx, "signal")
		case err, ok := <-serveErr:
			if ok {
				result = errors.NewNetworkError("control endpoint failed", err)
			}
			break loop
		case <-ctx.Done():
			r.logger.Infof("Kiosk agent context done, reason: %v", ctx.Err())
			break loop
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		r.logger.Warnf("Control endpoint shutdown, error: %v", err)
	}

	cancel()
	r.logger.Infof("Waiting for running launch sequence to finish...")
	r.Wait()

	r.logger.Infof("Kiosk agent stopped")
	return result
}

// claimInstance refuses to start next to a live resident agent of the same user
func (r *Runner) claimInstance() error {
	pid, err := r.files.ReadPIDFile()
	if err != nil || pid == os.Getpid() {
		return nil
	}
	running, err := r.isRunning(pid)
	if err != nil || !running {
		r.logger.Debugf("Stale PID file, pid: %d", pid)
		return nil
	}
	return errors.NewUnavailableError("another kiosk agent is already running", nil).WithContext("pid", pid)
}

func listenLoopback(port int) (net.Listener, int, error) {
	if port == 0 {
		free, err := freeport.GetFreePort()
		if err != nil {
			return nil, 0, errors.NewNetworkError("no free control port", err)
		}
		port = free
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, 0, errors.NewNetworkError("failed to listen on control port", err).WithContext("port", port)
	}
	return listener, port, nil
}
