package logging

// Levels accepted by LogLevelf, lowest first
const (
	LogLevelDebug = 0
	LogLevelInfo  = 1
	LogLevelWarn  = 2
	LogLevelError = 3
)

// Logger is the printf-style facade every package receives. Messages follow
// the "Text, key: %v" form.
type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

type LogLevelFunc func(level int, format string, args ...interface{})
type LogFunc func(format string, args ...interface{})

// LogFuncs wires a backend into a Logger. LogLevelf, when set, takes every
// level and the per-level funcs are ignored.
type LogFuncs struct {
	LogLevelf LogLevelFunc
	Debugf    LogFunc
	Infof     LogFunc
	Warnf     LogFunc
	Errorf    LogFunc
}

func (f LogFuncs) forLevel(level int) LogFunc {
	switch level {
	case LogLevelDebug:
		return f.Debugf
	case LogLevelInfo:
		return f.Infof
	case LogLevelWarn:
		return f.Warnf
	case LogLevelError:
		return f.Errorf
	}
	return nil
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

// NewLogger returns a Logger that prepends prefix to every message and
// dispatches to the given funcs. Nil funcs drop the message.
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

// WithPrefix returns a child logger that adds prefix after the parent's own.
func WithPrefix(parent Logger, prefix string) Logger {
	return &logger{
		prefix: prefix,
		funcs:  LogFuncs{LogLevelf: parent.LogLevelf},
	}
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return &logger{}
}

func (l *logger) logf(level int, msg string, args ...interface{}) {
	if l.prefix != "" {
		msg = l.prefix + msg
	}
	if l.funcs.LogLevelf != nil {
		l.funcs.LogLevelf(level, msg, args...)
		return
	}
	if fn := l.funcs.forLevel(level); fn != nil {
		fn(msg, args...)
	}
}

func (l *logger) LogLevelf(level int, format string, args ...interface{}) {
	l.logf(level, format, args...)
}

func (l *logger) Debugf(msg string, args ...interface{}) { l.logf(LogLevelDebug, msg, args...) }
func (l *logger) Infof(msg string, args ...interface{})  { l.logf(LogLevelInfo, msg, args...) }
func (l *logger) Warnf(msg string, args ...interface{})  { l.logf(LogLevelWarn, msg, args...) }
func (l *logger) Errorf(msg string, args ...interface{}) { l.logf(LogLevelError, msg, args...) }
