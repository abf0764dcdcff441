package launch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/config"
	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/kiosk"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/scanner"
)

type DisplayWaiter interface {
	Wait(ctx context.Context, maxWait, pollInterval, grace time.Duration) bool
}

type ServerProbe interface {
	Probe(ctx context.Context, url string, retries int) bool
}

type ServerScanner interface {
	Scan(ctx context.Context, req scanner.Request) (string, bool)
}

type KioskLauncher interface {
	Launch(ctx context.Context, req kiosk.Request) (kiosk.Result, error)
}

// ConfigSource hands out snapshots and persists updated ones
type ConfigSource interface {
	Snapshot() config.LaunchConfig
	Save(config config.LaunchConfig) error
}

// Orchestrator runs the launch sequence:
// START, CHECK_DISPLAY, VALIDATE_URL, optionally SCAN_FALLBACK, LAUNCH, END.
// Each stage either passes or ends the attempt.
type Orchestrator struct {
	configs  ConfigSource
	waiter   DisplayWaiter
	prober   ServerProbe
	scanner  ServerScanner
	launcher KioskLauncher
	signal   *SessionSignal
	logger   logging.Logger
}

func NewOrchestrator(
	configs ConfigSource,
	waiter DisplayWaiter,
	prober ServerProbe,
	scanner ServerScanner,
	launcher KioskLauncher,
	signal *SessionSignal,
	logger logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		configs:  configs,
		waiter:   waiter,
		prober:   prober,
		scanner:  scanner,
		launcher: launcher,
		signal:   signal,
		logger:   logger,
	}
}

// Run executes one attempt. It never panics and never returns an error; the
// outcome says how far the attempt got and why it stopped.
func (o *Orchestrator) Run(ctx context.Context) (outcome Outcome) {
	attempt := newAttempt(o.configs.Snapshot())
	logger := logging.WithPrefix(o.logger, fmt.Sprintf("attempt %s: ", attempt.ShortID()))
	outcome = Outcome{AttemptID: attempt.ID, Stage: StageStart}

	defer func() {
		if r := recover(); r != nil {
			outcome.Launched = false
			outcome.Reason = "unexpected fault"
			outcome.Err = errors.NewInternalError(fmt.Sprintf("panic during %s: %v", outcome.Stage, r), nil)
			logger.Errorf("Launch sequence crashed, stage: %s, panic: %v, stack: %s", outcome.Stage, r, debug.Stack())
		}
		outcome.URL = attempt.URL
		outcome.Display = attempt.Display
		outcome.PID = attempt.PID
		outcome.Duration = time.Since(attempt.started)
		if outcome.Launched {
			logger.Infof("Launch sequence finished, %s", outcome)
		} else {
			logger.Warnf("Launch sequence %s", outcome)
		}
	}()

	logger.Infof("Launch sequence started, attempt_id: %s", attempt.ID)
	o.run(ctx, attempt, &outcome, logger)
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, attempt *Attempt, outcome *Outcome, logger logging.Logger) {
	cfg := &attempt.Config

	outcome.Stage = StageCheckDisplay
	if o.signal.Active() {
		logger.Infof("Secondary display already active in this session, skipping display wait")
	} else {
		if !o.waiter.Wait(ctx, cfg.MaxDisplayWait(), cfg.DisplayPollInterval(), cfg.GracePeriod()) {
			o.abort(ctx, outcome, "no secondary display detected",
				errors.NewNotFoundError("no secondary display detected", nil).WithContext("max_wait", cfg.MaxDisplayWait()))
			return
		}
		o.signal.Set()
	}

	outcome.Stage = StageValidateURL
	if cfg.URL != "" && o.prober.Probe(ctx, cfg.URL, cfg.ServerCheckRetries) {
		logger.Infof("Configured dashboard URL is reachable, url: %s", cfg.URL)
		attempt.URL = cfg.URL
	} else {
		if cfg.URL == "" {
			logger.Infof("No dashboard URL configured")
		} else {
			logger.Warnf("Configured dashboard URL is unreachable, url: %s", cfg.URL)
		}

		outcome.Stage = StageScanFallback
		if ctx.Err() != nil {
			o.abort(ctx, outcome, "cancelled", nil)
			return
		}
		found, ok := o.scanner.Scan(ctx, scanner.Request{
			IPBase:      cfg.Scan.IPBase,
			Ports:       cfg.Scan.Ports,
			Path:        cfg.Scan.Path,
			MaxDuration: cfg.ScanTimeout(),
			MaxParallel: cfg.Scan.MaxParallel,
		})
		if !ok {
			o.abort(ctx, outcome, "no dashboard server found",
				errors.NewNotFoundError("no dashboard server found", nil).WithContext("scan_timeout", cfg.ScanTimeout()))
			return
		}

		attempt.URL = NormalizeDashboardURL(found, cfg.DashboardPath)
		outcome.URLDiscovered = true
		logger.Infof("Dashboard server discovered, server: %s, url: %s", found, attempt.URL)
		o.persistURL(attempt.URL, logger)
	}

	outcome.Stage = StageLaunch
	result, err := o.launcher.Launch(ctx, kiosk.Request{
		URL:          attempt.URL,
		DisplayIndex: cfg.DisplayIndex,
		ExtraArgs:    cfg.ExtraKioskArgs(),
	})
	attempt.PID = result.PID
	attempt.Display = result.Display
	if result.Display.ID == "" || result.Display.Primary {
		if o.signal.Active() {
			logger.Warnf("No secondary display at launch, clearing session display signal")
		}
		o.signal.Clear()
	}
	if err != nil {
		o.abort(ctx, outcome, launchFailureReason(err), err)
		return
	}

	outcome.Stage = StageEnd
	outcome.Launched = true
}

// persistURL saves the discovered URL on top of the latest configuration so
// edits made while the attempt ran are kept
func (o *Orchestrator) persistURL(url string, logger logging.Logger) {
	latest := o.configs.Snapshot()
	if latest.URL == url {
		return
	}
	latest.URL = url
	if err := o.configs.Save(latest); err != nil {
		logger.Errorf("Failed to save discovered URL, url: %s, error: %v", url, err)
		return
	}
	logger.Infof("Discovered URL saved, url: %s", url)
}

func (o *Orchestrator) abort(ctx context.Context, outcome *Outcome, reason string, err error) {
	if ctx.Err() != nil && !errors.IsCancelledError(err) {
		reason = "cancelled"
		err = errors.NewCancelledError("launch sequence cancelled", ctx.Err())
	}
	outcome.Reason = reason
	outcome.Err = err
}

func launchFailureReason(err error) string {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeUnavailable:
		return "browser not found"
	case errors.ErrorTypeProcess:
		return "browser failed to start"
	case errors.ErrorTypeTimeout:
		return "browser window did not appear"
	case errors.ErrorTypeNotFound:
		return "no display to place the window on"
	case errors.ErrorTypeCancelled:
		return "cancelled"
	default:
		return "window placement failed"
	}
}
