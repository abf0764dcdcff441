package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig defines the zap backend configuration
type ZapConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "console", "json"
	File   string // appended to in addition to stdout; empty disables file output
	Caller bool
}

// ZapBackend is the process-wide log sink. It hides zap types from the rest of the module.
type ZapBackend struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	file   *os.File
}

// DefaultZapConfig returns the configuration used when nothing is set
func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "console",
	}
}

// NewZapBackend creates the zap logger. When the log file cannot be opened the backend
// still logs to stdout and the returned error describes the file problem.
func NewZapBackend(config ZapConfig) (*ZapBackend, error) {
	level, err := getLevelFromString(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}

	var file *os.File
	var fileErr error
	if config.File != "" {
		file, fileErr = openLogFile(config.File)
		if fileErr == nil {
			syncers = append(syncers, zapcore.AddSync(file))
		}
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.NewMultiWriteSyncer(syncers...)), level)

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(3))
	}

	logger := zap.New(core, opts...)
	backend := &ZapBackend{
		logger: logger,
		sugar:  logger.Sugar(),
		file:   file,
	}
	return backend, fileErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Logger wraps the backend in the module Logger interface
func (z *ZapBackend) Logger(prefix string) Logger {
	return NewLogger(prefix, LogFuncs{
		Debugf: z.sugar.Debugf,
		Infof:  z.sugar.Infof,
		Warnf:  z.sugar.Warnf,
		Errorf: z.sugar.Errorf,
	})
}

// Close flushes buffered entries and closes the log file
func (z *ZapBackend) Close() error {
	// Sync on stdout returns EINVAL on some terminals; not worth reporting.
	_ = z.logger.Sync()
	if z.file != nil {
		return z.file.Close()
	}
	return nil
}

// zap v1.20 has no zapcore.ParseLevel
func getLevelFromString(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return -1, fmt.Errorf("invalid log level: %s", levelStr)
	}
}

// ValidLevel reports whether level is accepted by the backend
func ValidLevel(level string) bool {
	_, err := getLevelFromString(level)
	return err == nil
}
