package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// swapped by tests while event loops may still be logging
var logger atomic.Pointer[zap.Logger]

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "HUBSETUP_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks HUBSETUP_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger.Store(zap.NewNop())
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
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
	logger.Store(l)

	return nil
}

// InitializeFromEnv initializes the logger from the HUBSETUP_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer
// style loggers.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	// Silent until initialized so library code never prints on its own
	return zap.NewNop()
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogRadioState logs a change of the Bluetooth radio power state
func LogRadioState(state string) {
	Info("Radio state changed", zap.String("state", state))
}

// LogHubEvent logs a lifecycle event for a hub connection
func LogHubEvent(hubID string, sessionID uint64, event string) {
	Info("Hub event",
		zap.String("hub_id", hubID),
		zap.Uint64("session_id", sessionID),
		zap.String("event", event),
	)
}

// LogAttribute logs a GATT attribute payload. Payloads are only dumped at
// debug level. Callers must never pass credential attributes here.
func LogAttribute(direction string, attribute string, data []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug("Attribute value",
		zap.String("direction", direction),
		zap.String("attribute", attribute),
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

// LogTransition logs a provisioning state machine transition
func LogTransition(from, to string, reason string) {
	fields := []zap.Field{
		zap.String("from", from),
		zap.String("to", to),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	Info("Provisioning transition", fields...)
}

// LogProbe logs an HTTP reachability probe against the hub
func LogProbe(address string, err error) {
	if err != nil {
		Debug("Hub probe failed", zap.String("address", address), zap.Error(err))
		return
	}
	Info("Hub probe succeeded", zap.String("address", address))
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	// GATT values are small, but cap anyway
	if len(data) > 256 {
		return hex.EncodeToString(data[:256]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > 256 {
		data = data[:256]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if l := logger.Load(); l != nil {
		_ = l.Sync()
	}
}
