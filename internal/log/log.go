//
// Tencent is pleased to support the open source community by making
// cachewarm available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// cachewarm is licensed under the Apache License Version 2.0.
//
//

// Package log provides the package-level logger used across cachewarm.
//
// Demo-facing output (progress lines, comparison tables) goes straight to
// stdout; this logger carries diagnostics only.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Default is the logger behind the package-level helpers.
var Default = newSugared(zapcore.InfoLevel)

// SetLevel replaces the default logger with one at the given level.
func SetLevel(level zapcore.Level) {
	Default = newSugared(level)
}

// SetLogger replaces the default logger.
func SetLogger(logger *zap.SugaredLogger) {
	if logger == nil {
		return
	}
	Default = logger
}

// Debugf logs at debug level.
func Debugf(format string, args ...any) {
	Default.Debugf(format, args...)
}

// Infof logs at info level.
func Infof(format string, args ...any) {
	Default.Infof(format, args...)
}

// Warnf logs at warn level.
func Warnf(format string, args ...any) {
	Default.Warnf(format, args...)
}

// Errorf logs at error level.
func Errorf(format string, args ...any) {
	Default.Errorf(format, args...)
}

func newSugared(level zapcore.Level) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}
