// Package logging builds the zap loggers shared by the orchestrator components.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys used across components
const (
	KeyRecordingID = "recordingId"
	KeyStrategy    = "strategy"
	KeyState       = "state"
	KeyPath        = "path"
	KeyComponent   = "component"
	KeyDurationMs  = "durationMs"
)

// New returns a production JSON logger, or a colored development logger in debug mode.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Component returns a child logger tagged with the component name
func Component(l *zap.Logger, name string) *zap.Logger {
	return OrNop(l).With(zap.String(KeyComponent, name))
}

// RecordingID is a shorthand field for the recording id
func RecordingID(id string) zap.Field {
	return zap.String(KeyRecordingID, id)
}

// NewFile returns a logger that writes JSON lines to path, for modes that own the terminal
func NewFile(path string, debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
