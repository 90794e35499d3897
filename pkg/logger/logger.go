// Package logger is the structured logging facade shared by every hummock
// component. It wraps zap's SugaredLogger behind a small key/value interface
// so packages accept a [Logger] through their options and fall back to the
// process-wide [Default] when none is given.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a leveled, structured logger. Arguments after msg are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)

	// With returns a child logger that prepends kv to every entry.
	With(kv ...any) Logger

	// Sync flushes buffered entries.
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New wraps an existing zap logger.
func New(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}

func (l *zapLogger) Sync() error { return l.s.Sync() }

// Production builds a JSON logger at the given level ("debug", "info", ...).
func Production(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// MustProduction is Production at info level, panicking on failure.
func MustProduction() Logger {
	l, err := Production("info")
	if err != nil {
		panic(err)
	}
	return l
}

// NewDevelopment builds a human-readable console logger at debug level.
func NewDevelopment() (Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return New(zap.NewNop())
}

var (
	mu       sync.RWMutex
	fallback = NewNop()
)

// Default returns the process-wide logger. It discards output until
// SetDefault is called.
func Default() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return fallback
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	fallback = l
	mu.Unlock()
}

// SyncDefault flushes the process-wide logger. Errors are ignored; they are
// routinely returned for stdout/stderr on Linux.
func SyncDefault() {
	_ = Default().Sync()
}

// Fatal logs at error level on the default logger, flushes it and exits
// the process with status 1.
func Fatal(msg string, kv ...any) {
	l := Default()
	l.Error(msg, kv...)
	_ = l.Sync()
	os.Exit(1)
}
