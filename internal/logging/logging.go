// Package logging provides the process-wide structured logger.
// It wraps zap and exposes a sugared, printf-style API so call sites read
// like ordinary log.Printf calls.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

// Init builds the global logger with the given level ("debug", "info",
// "warn", "error"). JSON output is used when json is true, console output otherwise.
func Init(level string, json bool) error {
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableCaller = true
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !json {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	Set(l)
	return nil
}

// Set replaces the global logger. Passing nil installs a no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Logger returns the global zap logger, building a development logger on first use.
func Logger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		dev, err := zap.NewDevelopment()
		if err != nil {
			dev = zap.NewNop()
		}
		logger = dev
	}
	return logger
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger {
	return Logger().Sugar()
}

// Named returns a sugared logger scoped to a component name.
func Named(name string) *zap.SugaredLogger {
	return Logger().Named(name).Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger().Sync()
}
