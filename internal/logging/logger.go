// File: internal/logging/logger.go
// Brief: Level-configured logr.Logger backed by zap.

package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger configured with the given level string. Debug enables
// the development encoder; everything else writes compact console output to
// stderr.
func New(level string) (logr.Logger, error) {
	lower := strings.ToLower(level)
	var zapLevel zapcore.Level
	development := false
	switch lower {
	case "debug":
		development = true
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return logr.Logger{}, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(zapLevel),
	)
	return zapr.NewLogger(zap.New(core)), nil
}
