package kiosk

import (
	"context"

	"github.com/core-tools/hsu-kiosk/pkg/config"
	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/process"
	"github.com/core-tools/hsu-kiosk/pkg/window"
)

// ConfiguredLauncher reads the browser settings at every launch, so a reloaded
// configuration applies to the next attempt
type ConfiguredLauncher struct {
	browser  func() config.BrowserConfig
	spawner  process.Spawner
	displays display.Enumerator
	windows  window.Controller
	options  Options
	logger   logging.Logger
}

func NewConfiguredLauncher(
	browser func() config.BrowserConfig,
	spawner process.Spawner,
	displays display.Enumerator,
	windows window.Controller,
	options Options,
	logger logging.Logger,
) *ConfiguredLauncher {
	return &ConfiguredLauncher{
		browser:  browser,
		spawner:  spawner,
		displays: displays,
		windows:  windows,
		options:  options,
		logger:   logger,
	}
}

func (c *ConfiguredLauncher) Launch(ctx context.Context, req Request) (Result, error) {
	browser := c.browser()
	locator := process.NewLocator(browser.Names, browser.Paths, c.logger)
	return NewLauncher(locator, c.spawner, c.displays, c.windows, browser.WindowProcess, c.options, c.logger).Launch(ctx, req)
}
