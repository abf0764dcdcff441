package scanner

import (
	"context"
	"net/http"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/probe"
)

const (
	DefaultProbeTimeout    = 2 * time.Second
	DefaultFastPathTimeout = 1 * time.Second
	DefaultMaxParallel     = 32
	DefaultMaxScanDuration = 10 * time.Second
)

type Options struct {
	ProbeTimeout    time.Duration // per sweep probe
	FastPathTimeout time.Duration // per localhost probe
}

func DefaultOptions() Options {
	return Options{
		ProbeTimeout:    DefaultProbeTimeout,
		FastPathTimeout: DefaultFastPathTimeout,
	}
}

// Request describes one scan. An empty IPBase is detected from local interfaces.
type Request struct {
	IPBase      string
	Ports       []int
	Path        string
	MaxDuration time.Duration
	MaxParallel int
}

// Scanner finds a dashboard server: localhost first, then a bounded sweep of a /24
type Scanner struct {
	getter     probe.Getter
	options    Options
	logger     logging.Logger
	detectBase func() (string, error)
}

func NewScanner(getter probe.Getter, options Options, logger logging.Logger) *Scanner {
	if options.ProbeTimeout <= 0 {
		options.ProbeTimeout = DefaultProbeTimeout
	}
	if options.FastPathTimeout <= 0 {
		options.FastPathTimeout = DefaultFastPathTimeout
	}
	return &Scanner{
		getter:     getter,
		options:    options,
		logger:     logger,
		detectBase: DetectIPBase,
	}
}

type result struct {
	url string
	ok  bool
}

// Scan returns the first URL answering 200, or false when nothing answered
// within req.MaxDuration. The budget covers the whole call. When Scan returns,
// probes still in flight are cancelled and not awaited.
func (s *Scanner) Scan(ctx context.Context, req Request) (string, bool) {
	if req.MaxDuration <= 0 {
		req.MaxDuration = DefaultMaxScanDuration
	}
	if req.MaxParallel < 1 {
		req.MaxParallel = DefaultMaxParallel
	}

	start := time.Now()
	scanCtx, cancel := context.WithDeadline(ctx, start.Add(req.MaxDuration))
	defer cancel()

	s.logger.Infof("Scanning for dashboard server, ports: %v, path: %s, max_duration: %v, max_parallel: %d",
		req.Ports, req.Path, req.MaxDuration, req.MaxParallel)

	if url, ok := s.scanLocal(scanCtx, req); ok {
		return url, true
	}

	ipBase := req.IPBase
	if ipBase == "" {
		detected, err := s.detectBase()
		if err != nil {
			s.logger.Warnf("No subnet to sweep, error: %v", err)
			return "", false
		}
		s.logger.Infof("Detected subnet base: %s", detected)
		ipBase = detected
	}

	targets := BuildTargets(ipBase, req.Ports, req.Path)
	results := make(chan result, req.MaxParallel)
	running := 0
	next := 0

	for {
		for running < req.MaxParallel && next < len(targets) && scanCtx.Err() == nil {
			go s.probeTarget(scanCtx, targets[next], results)
			next++
			running++
		}

		if running == 0 {
			s.logger.Warnf("Scan finished without a server, probed: %d, elapsed: %v", next, time.Since(start).Round(time.Millisecond))
			return "", false
		}

		select {
		case r := <-results:
			running--
			if r.ok {
				s.logger.Infof("Dashboard server found, url: %s, probed: %d, elapsed: %v", r.url, next, time.Since(start).Round(time.Millisecond))
				return r.url, true
			}
		case <-scanCtx.Done():
			s.logger.Warnf("Scan stopped, probed: %d of %d, in_flight: %d, elapsed: %v, reason: %v",
				next, len(targets), running, time.Since(start).Round(time.Millisecond), scanCtx.Err())
			return "", false
		}
	}
}

func (s *Scanner) scanLocal(ctx context.Context, req Request) (string, bool) {
	for _, target := range LocalTargets(req.Ports, req.Path) {
		if ctx.Err() != nil {
			return "", false
		}
		url := target.URL()
		status, err := s.getter.Get(ctx, url, s.options.FastPathTimeout)
		if err == nil && status == http.StatusOK {
			s.logger.Infof("Dashboard server found on this host, url: %s", url)
			return url, true
		}
		s.logger.Debugf("Local probe failed, url: %s, status: %d, error: %v", url, status, err)
	}
	return "", false
}

// probeTarget always delivers exactly one result; results has room for every running probe
func (s *Scanner) probeTarget(ctx context.Context, target Target, results chan<- result) {
	url := target.URL()
	if ctx.Err() != nil {
		results <- result{url: url}
		return
	}
	status, err := s.getter.Get(ctx, url, s.options.ProbeTimeout)
	ok := err == nil && status == http.StatusOK && ctx.Err() == nil
	results <- result{url: url, ok: ok}
}
