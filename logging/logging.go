// Package logging contains the zap-backed logger used across calibration and marker tracking.
package logging

import (
	"io"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewEncoderConfig returns the console encoder config shared by every appender that writes text.
// Stacktraces are disabled and levels are capitalized.
func NewEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewLogger returns a logger writing Info+ entries to stdout in UTC.
func NewLogger(name string) Logger {
	return newImpl(name, INFO, true, NewStdoutAppender())
}

// NewWriterLogger returns a logger that writes Debug+ console formatted entries to w. The CLI hands it stderr so
// results can go to stdout.
func NewWriterLogger(name string, w io.Writer) Logger {
	return newImpl(name, DEBUG, true, NewWriterAppender(w))
}

// NewBlankLogger returns a logger with no appenders. It stands in when a caller passes no logger.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, true)
}

// NewTestLogger returns a logger that writes Debug+ entries to tb in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is NewTestLogger that also records every entry for assertions.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	return newImpl("", DEBUG, false, NewTestAppender(tb), core), logs
}

// NewStdoutAppender returns an appender writing console formatted entries to stdout.
func NewStdoutAppender() Appender {
	return NewWriterAppender(os.Stdout)
}
