package probe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/logging"
)

const (
	DefaultAttemptTimeout = 2 * time.Second
	DefaultRetryBackoff   = 400 * time.Millisecond
)

type Options struct {
	AttemptTimeout time.Duration
	RetryBackoff   time.Duration
}

func DefaultOptions() Options {
	return Options{
		AttemptTimeout: DefaultAttemptTimeout,
		RetryBackoff:   DefaultRetryBackoff,
	}
}

// Prober checks that a known dashboard URL answers 200
type Prober struct {
	getter  Getter
	options Options
	logger  logging.Logger
}

func NewProber(getter Getter, options Options, logger logging.Logger) *Prober {
	if options.AttemptTimeout <= 0 {
		options.AttemptTimeout = DefaultAttemptTimeout
	}
	if options.RetryBackoff < 0 {
		options.RetryBackoff = 0
	}
	return &Prober{
		getter:  getter,
		options: options,
		logger:  logger,
	}
}

// Probe makes up to retries attempts against url with its fragment removed.
// Network failures are logged and reported as false.
func (p *Prober) Probe(ctx context.Context, url string, retries int) bool {
	if retries < 1 {
		retries = 1
	}
	target := StripFragment(url)

	for attempt := 1; attempt <= retries; attempt++ {
		status, err := p.getter.Get(ctx, target, p.options.AttemptTimeout)
		if err == nil && status == http.StatusOK {
			p.logger.Infof("Server reachable, url: %s, attempt: %d", target, attempt)
			return true
		}
		if err != nil {
			p.logger.Warnf("Server check failed, url: %s, attempt: %d/%d, error: %v", target, attempt, retries, err)
		} else {
			p.logger.Warnf("Server check failed, url: %s, attempt: %d/%d, status: %d", target, attempt, retries, status)
		}

		if attempt == retries {
			break
		}
		timer := time.NewTimer(p.options.RetryBackoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			p.logger.Warnf("Server check cancelled, url: %s", target)
			return false
		}
	}
	return false
}

// StripFragment drops everything from the first '#'
func StripFragment(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		return url[:i]
	}
	return url
}
