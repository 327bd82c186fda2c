// Package telemetry adapts the engine's narrow logging needs onto zap.
package telemetry

import (
	"log"

	"go.uber.org/zap"
)

// Logger exposes the logging capabilities required by engine components:
// Printf-style info and warning output only. A *log.Logger can stand in
// through WrapLogger without touching call sites; the standard-logger
// escape hatch (StandardLogger) is offered by the zap-backed
// implementation, not by this interface.
type Logger interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
}

// LoggerFunc adapts a function into the Logger interface for Printf-only
// use. Warnf falls back to the same function.
type LoggerFunc func(format string, args ...any)

func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

func (f LoggerFunc) Warnf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
// NewZap falls back to the same adapter when given no zap logger.
func WrapLogger(logger *log.Logger) Logger {
	return &stdAdapter{logger: logger}
}

type stdAdapter struct {
	logger *log.Logger
}

func (l *stdAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

func (l *stdAdapter) Warnf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf("WARN: "+format, args...)
}

// zapAdapter backs Logger with a *zap.SugaredLogger, the structured logger
// used throughout the module's ambient stack.
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZap builds a Logger backed by the given sugared zap logger. Passing nil
// yields a Logger that writes through the standard library's default
// logger. Output format, level and timestamps are whatever the caller's zap
// logger was built with; LogConfig (see internal/config) is not consulted.
func NewZap(sugar *zap.SugaredLogger) Logger {
	if sugar == nil {
		return &stdAdapter{logger: log.Default()}
	}
	return &zapAdapter{sugar: sugar}
}

func (l *zapAdapter) Printf(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *zapAdapter) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

// StandardLogger exposes a *log.Logger view of a zap-backed Logger. It is not
// part of the Logger interface; callers reach it with a type assertion.
func (l *zapAdapter) StandardLogger() *log.Logger {
	return zap.NewStdLog(l.sugar.Desugar())
}
