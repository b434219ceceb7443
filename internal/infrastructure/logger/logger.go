// Package logger defines the logging interface used across the service and
// its logrus-backed implementation.
package logger

import (
	"context"
	"io"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

type Fields map[string]any

// Logger is the structured logger handed to every component. Components
// derive their own logger with WithField("component", ...).
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...any)
	Info(msg string)
	Infof(format string, args ...any)
	Warn(msg string)
	Warnf(format string, args ...any)
	Error(msg string)
	Errorf(format string, args ...any)
	Fatal(msg string)
	Fatalf(format string, args ...any)

	WithField(key string, value any) Logger
	WithFields(fields Fields) Logger
	WithContext(ctx context.Context) Logger

	SetLevel(level Level)
	SetOutput(output io.Writer)

	// Writer returns a writer whose lines are logged at error level, for
	// libraries that only accept an io.Writer. Close it when done.
	Writer() io.WriteCloser
}
