// Package logging builds the zap logger used by kcd.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger for humans, or a JSON logger when json is
// set. Verbosity 0 logs at info, 1 and above at debug.
func New(verbosity int, json bool) (*zap.Logger, error) {
	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(Level(verbosity))
	return cfg.Build()
}

// Level maps a -v count to a zap level.
func Level(verbosity int) zapcore.Level {
	if verbosity > 0 {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
