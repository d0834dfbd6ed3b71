// Package log is the process-wide structured logger. Every other package in
// this module logs through here instead of reaching for fmt or the standard
// library log package.
package log

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Level gates which of Debug/Info/Warn/Error actually reach zap, so a hot
// path (Insert, Query) can call Debug freely without paying for it in
// production.
type Level int32

const (
	DEBUG Level = iota
	INFO
	WARNING
	ERROR
	FATAL
)

var (
	base    *zap.Logger
	sugar   *zap.SugaredLogger
	current atomic.Int32
)

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	base = logger
	sugar = logger.Sugar()
	current.Store(int32(INFO))
}

// SetLevel changes the minimum level that reaches the underlying logger. It
// is safe to call concurrently with Debug/Info/Warn/Error.
func SetLevel(level Level) {
	current.Store(int32(level))
}

// Sync flushes any buffered log entries, and should be called once before
// the process exits so a crash or os.Exit doesn't drop the last few lines.
func Sync() error {
	return base.Sync()
}

func emit(level Level, format string, args []interface{}) {
	if Level(current.Load()) > level {
		return
	}
	switch level {
	case DEBUG:
		sugar.Debugf(format, args...)
	case INFO:
		sugar.Infof(format, args...)
	case WARNING:
		sugar.Warnf(format, args...)
	case ERROR:
		sugar.Errorf(format, args...)
	default:
		sugar.Fatalf(format, args...)
	}
}

func Debug(format string, args ...interface{}) { emit(DEBUG, format, args) }

func Info(format string, args ...interface{}) { emit(INFO, format, args) }

func Warn(format string, args ...interface{}) { emit(WARNING, format, args) }

func Error(format string, args ...interface{}) { emit(ERROR, format, args) }

// Fatal always logs, then terminates the process via zap's Fatalf (os.Exit(1)).
func Fatal(format string, args ...interface{}) { emit(FATAL, format, args) }

// With returns a SugaredLogger pre-populated with keyValuePairs, for callers
// (e.g. a persister job tagging every line with its job id) that want
// structured fields attached to a whole run of log calls instead of
// interpolating them into the format string each time.
func With(keyValuePairs ...interface{}) *zap.SugaredLogger {
	return sugar.With(keyValuePairs...)
}
