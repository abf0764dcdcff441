package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/agent"
	"github.com/core-tools/hsu-kiosk/pkg/config"
	"github.com/core-tools/hsu-kiosk/pkg/display"
	"github.com/core-tools/hsu-kiosk/pkg/kiosk"
	"github.com/core-tools/hsu-kiosk/pkg/launch"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
	"github.com/core-tools/hsu-kiosk/pkg/probe"
	"github.com/core-tools/hsu-kiosk/pkg/process"
	"github.com/core-tools/hsu-kiosk/pkg/runtimefiles"
	"github.com/core-tools/hsu-kiosk/pkg/scanner"
	"github.com/core-tools/hsu-kiosk/pkg/window"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" description:"configuration file (.yaml or .toml)"`
	StateDir    string `long:"state-dir" description:"directory for the default configuration and log file"`
	RuntimeDir  string `long:"runtime-dir" description:"directory for the PID and control port files"`
	Startup     bool   `long:"startup" description:"run the launch sequence immediately"`
	Once        bool   `long:"once" description:"run the launch sequence once and exit"`
	Trigger     bool   `long:"trigger" description:"ask the running agent to start the launch sequence"`
	Port        int    `long:"port" description:"loopback control port (0 picks a free port)"`
	RunDuration int    `long:"run-duration" description:"stop the agent after this many seconds"`
	LogLevel    string `long:"log-level" description:"override the configured log level"`
}

const (
	exitOK       = 0
	exitFailure  = 1
	exitNoLaunch = 2
)

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var opts flagOptions
	parser := flags.NewParser(&opts, flags.HelpFlag)
	if _, err := parser.ParseArgs(argv); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return exitOK
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		return exitFailure
	}

	files := runtimefiles.NewManager(runtimefiles.Config{
		RuntimeDirectory: opts.RuntimeDir,
		StateDirectory:   opts.StateDir,
	}, logging.NewNopLogger())

	if opts.Trigger {
		return sendTrigger(files)
	}

	bootstrap, _ := logging.NewZapBackend(logging.ZapConfig{Level: levelOr(opts.LogLevel, "info"), Format: "console"})
	configPath := opts.Config
	if configPath == "" {
		configPath = files.ConfigFilePath()
	}
	manager, err := config.NewManager(config.NewFileStore(configPath, bootstrap.Logger(logPrefix("config"))), bootstrap.Logger(logPrefix("config")))
	if err != nil {
		bootstrap.Logger(logPrefix("kiosk")).Errorf("Failed to load configuration, path: %s, error: %v", configPath, err)
		bootstrap.Close()
		return exitFailure
	}
	bootstrap.Close()

	cfg := manager.Snapshot()
	zapConfig := logging.ZapConfig{
		Level:  levelOr(opts.LogLevel, cfg.Logging.Level),
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}
	if zapConfig.File == "" {
		zapConfig.File = files.LogFilePath()
	}
	backend, fileErr := logging.NewZapBackend(zapConfig)
	defer backend.Close()

	logger := backend.Logger(logPrefix("kiosk"))
	if fileErr != nil {
		logger.Warnf("Logging to stdout only, log file: %s, error: %v", zapConfig.File, fileErr)
	}
	logger.Infof("opts: %+v", opts)
	logger.Infof("Using configuration file: %s", configPath)

	runner := buildRunner(manager, files, backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Once {
		outcome := runner.RunOnce(ctx)
		if !outcome.Launched {
			return exitNoLaunch
		}
		return exitOK
	}
	// Serve installs its own handlers
	stop()

	err = runner.Serve(context.Background(), agent.Options{
		Startup:     opts.Startup,
		Port:        opts.Port,
		RunDuration: time.Duration(opts.RunDuration) * time.Second,
	})
	if err != nil {
		logger.Errorf("Kiosk agent failed, error: %v", err)
		return exitFailure
	}
	return exitOK
}

func buildRunner(manager *config.Manager, files *runtimefiles.Manager, backend *logging.ZapBackend) *agent.Runner {
	enumerator := display.NewSystemEnumerator()
	getter := probe.NewHTTPGetter()

	waiter := display.NewWaiter(enumerator, backend.Logger(logPrefix("display")))
	prober := probe.NewProber(getter, probe.DefaultOptions(), backend.Logger(logPrefix("probe")))
	sweeper := scanner.NewScanner(getter, scanner.DefaultOptions(), backend.Logger(logPrefix("scanner")))

	launcherLogger := backend.Logger(logPrefix("launcher"))
	launcher := kiosk.NewConfiguredLauncher(
		func() config.BrowserConfig { return manager.Snapshot().Browser },
		process.NewExecSpawner(launcherLogger),
		enumerator,
		window.NewSystemController(),
		kiosk.DefaultOptions(),
		launcherLogger,
	)

	sessionSignal := launch.NewSessionSignal(func() bool { return display.SecondaryPresent(enumerator) })
	orchestrator := launch.NewOrchestrator(manager, waiter, prober, sweeper, launcher, sessionSignal, backend.Logger(logPrefix("launch")))
	return agent.NewRunner(orchestrator, manager, files, backend.Logger(logPrefix("agent")))
}

func sendTrigger(files *runtimefiles.Manager) int {
	port, err := files.ReadPortFile()
	if err != nil {
		fmt.Printf("Kiosk agent is not running (no port file in %s): %v\n", filepath.Dir(files.PortFilePath()), err)
		return exitFailure
	}
	if err := agent.SendTrigger(context.Background(), port, "cli"); err != nil {
		fmt.Printf("Trigger failed: %v\n", err)
		return exitFailure
	}
	fmt.Println("Launch sequence started")
	return exitOK
}

func levelOr(override, configured string) string {
	if override != "" {
		return override
	}
	return configured
}
