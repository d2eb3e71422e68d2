package core

import (
	"log/slog"
	"sync/atomic"
)

// logger holds a caller-provided logger; nil means "derive from slog.Default".
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches slog.Default().With("component", "gasops"). SetLogger
// clears it so a later slog.SetDefault is picked up.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the supervisor logger. Safe for concurrent use.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "gasops")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// SetLogger replaces the supervisor logger; nil restores the default.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
