// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging holds the process-wide zap logger.
//
// Logging is silent unless a level is given on the command line, in the
// config file or through WALLBUS_LOG_LEVEL. Components receive a named child
// logger and never touch the global directly.
package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "WALLBUS_LOG_LEVEL"

// maxDumpBytes limits hex dumps in log fields
const maxDumpBytes = 256

var (
	mu     sync.Mutex
	logger *zap.Logger
)

// ParseLevel maps a level name to a zap level. Unknown names fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Initialize creates the global logger with the specified level.
// If level is empty, it checks WALLBUS_LOG_LEVEL; if neither is set,
// logging is disabled. Logs go to stderr so stdout stays usable for frame
// dumps.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		set(zap.NewNop())
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	set(l)
	return nil
}

func set(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// GetLogger returns the global logger, a nop logger before Initialize
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Named returns a child logger for one component
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// LogRawBytes logs raw bytes at debug level
func LogRawBytes(l *zap.Logger, label string, data []byte) {
	if !l.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	l.Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", HexDump(data)),
	)
}

// HexDump encodes data as hex, truncated for log output
func HexDump(data []byte) string {
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
