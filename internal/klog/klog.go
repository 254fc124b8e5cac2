// Package klog wraps zerolog the way go-ublk/internal/logging wraps the
// stdlib logger: a small Logger type with level-named methods, a
// package-level default instance, and structured key/value fields --
// except backed by github.com/rs/zerolog, the concrete backend the
// logiface-zerolog module in the retrieval pack wires for this purpose.
package klog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is a thin, leveled wrapper around a zerolog.Logger.
type Logger struct {
	z zerolog.Logger
}

// New constructs a Logger writing to w. A nil w defaults to os.Stderr.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

var (
	defaultOnce sync.Once
	defaultLog  *Logger
	defaultMu   sync.RWMutex
)

// Default returns the package-level logger, creating it on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		if defaultLog == nil {
			defaultLog = New(os.Stderr)
		}
		defaultMu.Unlock()
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLog
}

// SetDefault replaces the package-level logger, e.g. to redirect
// diagnostics to the simulated console during boot.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLog = l
}

func (l *Logger) with(fields []any) zerolog.Context {
	ctx := l.z.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		ctx = ctx.Interface(key, fields[i+1])
	}
	return ctx
}

func (l *Logger) Debug(msg string, fields ...any) {
	l.with(fields).Logger().Debug().Msg(msg)
}

func (l *Logger) Info(msg string, fields ...any) {
	l.with(fields).Logger().Info().Msg(msg)
}

func (l *Logger) Warn(msg string, fields ...any) {
	l.with(fields).Logger().Warn().Msg(msg)
}

func (l *Logger) Error(msg string, fields ...any) {
	l.with(fields).Logger().Error().Msg(msg)
}

// Panic logs at error level and marks the entry fatal; the kernel's own
// panic path (internal/kernel.Panic) is responsible for actually halting
// -- this just records the diagnostic.
func (l *Logger) Panic(msg string, fields ...any) {
	l.with(fields).Logger().Error().Bool("fatal", true).Msg(msg)
}

func Debug(msg string, fields ...any) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...any)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...any)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...any) { Default().Error(msg, fields...) }
func Panic(msg string, fields ...any) { Default().Panic(msg, fields...) }
