package config

import (
	"fmt"
	"net"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"

	"github.com/gobwas/glob"
)

// LaunchConfig is the persisted configuration of the kiosk agent
type LaunchConfig struct {
	URL                        string `yaml:"url" toml:"url"`
	DisplayIndex               int    `yaml:"display_index" toml:"display_index"` // -1 selects automatically
	ScanTimeoutSeconds         int    `yaml:"scan_timeout_seconds" toml:"scan_timeout_seconds"`
	DisplayPollIntervalSeconds int    `yaml:"display_poll_interval_seconds" toml:"display_poll_interval_seconds"`
	MaxDisplayWaitSeconds      int    `yaml:"max_display_wait_seconds" toml:"max_display_wait_seconds"`
	GracePeriodSeconds         int    `yaml:"grace_period_seconds" toml:"grace_period_seconds"`
	ServerCheckRetries         int    `yaml:"server_check_retries" toml:"server_check_retries"`
	CustomKiosk                bool   `yaml:"custom_kiosk" toml:"custom_kiosk"`
	KioskArgs                  string `yaml:"kiosk_args" toml:"kiosk_args"`
	DashboardPath              string `yaml:"dashboard_path" toml:"dashboard_path"`

	Scan    ScanConfig    `yaml:"scan" toml:"scan"`
	Browser BrowserConfig `yaml:"browser" toml:"browser"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ScanConfig describes the subnet sweep used when the configured URL is unreachable
type ScanConfig struct {
	IPBase      string `yaml:"ip_base" toml:"ip_base"` // first three octets, empty means detect
	Ports       []int  `yaml:"ports" toml:"ports"`
	Path        string `yaml:"path" toml:"path"`
	MaxParallel int    `yaml:"max_parallel" toml:"max_parallel"`
}

// BrowserConfig says where to look for the kiosk browser and how to find its window
type BrowserConfig struct {
	Names         []string `yaml:"names" toml:"names"`
	Paths         []string `yaml:"paths" toml:"paths"`
	WindowProcess string   `yaml:"window_process" toml:"window_process"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

const (
	DisplayIndexAuto     = -1
	DefaultDashboardPath = "/#/app/weatherwaves"
	DefaultDashboardPort = 8891
)

// Default returns a configuration with every field at its default value
func Default() LaunchConfig {
	return LaunchConfig{
		URL:                        "",
		DisplayIndex:               DisplayIndexAuto,
		ScanTimeoutSeconds:         10,
		DisplayPollIntervalSeconds: 2,
		MaxDisplayWaitSeconds:      30,
		GracePeriodSeconds:         0,
		ServerCheckRetries:         1,
		CustomKiosk:                false,
		KioskArgs:                  "",
		DashboardPath:              DefaultDashboardPath,
		Scan: ScanConfig{
			IPBase:      "",
			Ports:       []int{DefaultDashboardPort},
			Path:        "/",
			MaxParallel: 32,
		},
		Browser: defaultBrowserConfig(runtime.GOOS),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File:   "",
		},
	}
}

func defaultBrowserConfig(goos string) BrowserConfig {
	switch goos {
	case "windows":
		return BrowserConfig{
			Names: []string{"msedge.exe"},
			Paths: []string{
				`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
				`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
			},
			WindowProcess: "msedge.exe",
		}
	case "darwin":
		return BrowserConfig{
			Names:         []string{"microsoft-edge"},
			Paths:         []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
			WindowProcess: "Microsoft Edge",
		}
	default:
		return BrowserConfig{
			Names: []string{"microsoft-edge", "microsoft-edge-stable", "msedge"},
			Paths: []string{
				"/usr/bin/microsoft-edge",
				"/usr/bin/microsoft-edge-stable",
				"/opt/microsoft/msedge/msedge",
			},
			WindowProcess: "msedge",
		}
	}
}

// Clone returns a deep copy, so snapshots never share slices with the owner
func (c LaunchConfig) Clone() LaunchConfig {
	out := c
	out.Scan.Ports = append([]int(nil), c.Scan.Ports...)
	out.Browser.Names = append([]string(nil), c.Browser.Names...)
	out.Browser.Paths = append([]string(nil), c.Browser.Paths...)
	return out
}

func (c LaunchConfig) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSeconds) * time.Second
}

func (c LaunchConfig) DisplayPollInterval() time.Duration {
	return time.Duration(c.DisplayPollIntervalSeconds) * time.Second
}

func (c LaunchConfig) MaxDisplayWait() time.Duration {
	return time.Duration(c.MaxDisplayWaitSeconds) * time.Second
}

func (c LaunchConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ExtraKioskArgs returns the user supplied browser arguments, only when custom kiosk mode is on
func (c LaunchConfig) ExtraKioskArgs() []string {
	if !c.CustomKiosk {
		return nil
	}
	return strings.Fields(c.KioskArgs)
}

// ValidateConfig reports every invalid field at once
func ValidateConfig(config *LaunchConfig) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	problems := errors.NewErrorCollection()

	if config.URL != "" {
		if err := validateURL(config.URL); err != nil {
			problems.Add(err)
		}
	}
	if config.DisplayIndex < DisplayIndexAuto {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("invalid display index: %d", config.DisplayIndex), nil,
		).WithContext("valid_range", "-1 (auto) or 0.."))
	}
	if config.ScanTimeoutSeconds < 0 {
		problems.Add(errors.NewValidationError("scan timeout cannot be negative", nil))
	}
	if config.MaxDisplayWaitSeconds < 0 {
		problems.Add(errors.NewValidationError("max display wait cannot be negative", nil))
	}
	if config.GracePeriodSeconds < 0 {
		problems.Add(errors.NewValidationError("grace period cannot be negative", nil))
	}
	if config.DisplayPollIntervalSeconds < 1 {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("display poll interval must be at least 1 second, got %d", config.DisplayPollIntervalSeconds), nil))
	}
	if config.ServerCheckRetries < 1 {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("server check retries must be at least 1, got %d", config.ServerCheckRetries), nil))
	}
	if config.DashboardPath != "" && !strings.HasPrefix(config.DashboardPath, "/") {
		problems.Add(errors.NewValidationError("dashboard path must start with '/'", nil).
			WithContext("dashboard_path", config.DashboardPath))
	}

	validateScanConfig(&config.Scan, problems)

	if len(config.Browser.Names) == 0 && len(config.Browser.Paths) == 0 {
		problems.Add(errors.NewValidationError("at least one browser name or path is required", nil))
	}
	if config.Browser.WindowProcess != "" {
		if _, err := glob.Compile(strings.ToLower(config.Browser.WindowProcess)); err != nil {
			problems.Add(errors.NewValidationError("invalid browser window process pattern", err).
				WithContext("window_process", config.Browser.WindowProcess))
		}
	}

	if !logging.ValidLevel(config.Logging.Level) {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", config.Logging.Level), nil,
		).WithContext("valid_levels", "debug, info, warn, error"))
	}
	switch config.Logging.Format {
	case "", "console", "json":
	default:
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", config.Logging.Format), nil,
		).WithContext("valid_formats", "console, json"))
	}

	if problems.HasErrors() {
		return errors.NewValidationError("invalid launch configuration", problems)
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.NewValidationError("invalid url", err).WithContext("url", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.NewValidationError("url scheme must be http or https", nil).WithContext("url", raw)
	}
	if parsed.Host == "" {
		return errors.NewValidationError("url host cannot be empty", nil).WithContext("url", raw)
	}
	return nil
}

func validateScanConfig(scan *ScanConfig, problems *errors.ErrorCollection) {
	if scan.IPBase != "" {
		if err := ValidateIPBase(scan.IPBase); err != nil {
			problems.Add(err)
		}
	}
	if len(scan.Ports) == 0 {
		problems.Add(errors.NewValidationError("scan ports cannot be empty", nil))
	}
	for _, port := range scan.Ports {
		if port <= 0 || port > 65535 {
			problems.Add(errors.NewValidationError(
				fmt.Sprintf("invalid port number: %d", port), nil,
			).WithContext("valid_range", "1-65535"))
		}
	}
	if !strings.HasPrefix(scan.Path, "/") {
		problems.Add(errors.NewValidationError("scan path must start with '/'", nil).WithContext("path", scan.Path))
	}
	if scan.MaxParallel < 1 {
		problems.Add(errors.NewValidationError(
			fmt.Sprintf("max_parallel must be at least 1, got %d", scan.MaxParallel), nil))
	}
}

// ValidateIPBase accepts the first three octets of an IPv4 /24, with or without trailing dot
func ValidateIPBase(base string) error {
	trimmed := strings.TrimSuffix(base, ".")
	if strings.Count(trimmed, ".") != 2 {
		return errors.NewValidationError("ip base must have three octets", nil).WithContext("ip_base", base)
	}
	if ip := net.ParseIP(trimmed + ".1"); ip == nil || ip.To4() == nil {
		return errors.NewValidationError("ip base is not an IPv4 prefix", nil).WithContext("ip_base", base)
	}
	return nil
}
