// Package logging builds the zap loggers used across docrud
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger flavour
type Config struct {
	// Level is a zap level name: debug, info, warn, error
	Level string

	// Development switches to the console encoder with caller and stack
	// traces on warnings
	Development bool

	// OutputPaths defaults to stderr
	OutputPaths []string
}

// New builds a JSON production logger, or a console logger in development mode
func New(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Named("docrud"), nil
}

// Must is New for callers that cannot continue without a logger
func Must(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return logger
}
