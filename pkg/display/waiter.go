package display

import (
	"context"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/logging"
)

// Waiter polls an Enumerator until a non-primary display shows up
type Waiter struct {
	enumerator Enumerator
	logger     logging.Logger

	lastCount    int
	lastNonPrim  int
	lastErrorMsg string
	last         []Descriptor
}

func NewWaiter(enumerator Enumerator, logger logging.Logger) *Waiter {
	return &Waiter{
		enumerator: enumerator,
		logger:     logger,
	}
}

// Wait reports whether a non-primary display is present, polling every
// pollInterval until maxWait has elapsed since the call. grace is slept once
// before the first check. A timeout is a negative result, not an error.
func (w *Waiter) Wait(ctx context.Context, maxWait, pollInterval, grace time.Duration) bool {
	start := time.Now()
	deadline := start.Add(maxWait)
	w.lastCount, w.lastNonPrim, w.lastErrorMsg = -1, -1, ""

	w.logger.Infof("Waiting for secondary display, max_wait: %v, poll_interval: %v, grace: %v", maxWait, pollInterval, grace)

	if grace > 0 {
		if !sleep(ctx, grace) {
			w.logger.Warnf("Display wait cancelled during grace period")
			return false
		}
	}

	for {
		if w.check() {
			w.logger.Infof("Secondary display present, elapsed: %v", time.Since(start).Round(time.Millisecond))
			return true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			w.logger.Warnf("No secondary display within %v", maxWait)
			return false
		}

		delay := pollInterval
		if delay <= 0 || delay > remaining {
			delay = remaining
		}
		if !sleep(ctx, delay) {
			w.logger.Warnf("Display wait cancelled, elapsed: %v", time.Since(start).Round(time.Millisecond))
			return false
		}
	}
}

// Displays returns the list seen by the most recent poll
func (w *Waiter) Displays() []Descriptor {
	return append([]Descriptor(nil), w.last...)
}

func (w *Waiter) check() bool {
	displays, err := w.enumerator.ListDisplays()
	if err != nil {
		if msg := err.Error(); msg != w.lastErrorMsg {
			w.logger.Warnf("Display enumeration failed, error: %v", err)
			w.lastErrorMsg = msg
		}
		w.last = nil
		return false
	}
	w.lastErrorMsg = ""
	w.last = displays

	nonPrimary := CountNonPrimary(displays)
	if len(displays) != w.lastCount || nonPrimary != w.lastNonPrim {
		w.logger.Infof("Display count changed, count: %d, non_primary: %d", len(displays), nonPrimary)
		for _, d := range displays {
			w.logger.Debugf("Display: %s", d)
		}
		w.lastCount = len(displays)
		w.lastNonPrim = nonPrimary
	}
	return nonPrimary > 0
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
