// Package logger builds the zap logger from the log section of the harness
// configuration. Console and file outputs each carry an atomic level so
// verbosity can be raised at runtime without rebuilding the logger.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/probelab/uidriver/internal/common/config"
)

// DynamicLogger wraps zap.Logger with runtime-adjustable output levels.
type DynamicLogger struct {
	*zap.Logger
	consoleLevel *zap.AtomicLevel
	fileLevel    *zap.AtomicLevel
}

// NewLogger creates a logger from the given log configuration. At least one
// output must be enabled.
func NewLogger(cfg config.LogConfig) (*DynamicLogger, error) {
	globalLevel := parseLogLevel(cfg.Level)

	var cores []zapcore.Core
	var consoleLevel, fileLevel *zap.AtomicLevel

	if cfg.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLogLevel(cfg.Console.Level, globalLevel))
		consoleLevel = &level
		cores = append(cores, zapcore.NewCore(
			createEncoder(cfg.Console.Format),
			zapcore.Lock(os.Stdout),
			consoleLevel))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLogLevel(cfg.File.Level, globalLevel))
		fileLevel = &level
		cores = append(cores, zapcore.NewCore(
			createEncoder(cfg.File.Format),
			createFileWriter(cfg.File.Path, cfg.File.Rotation),
			fileLevel))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	return &DynamicLogger{
		Logger:       zap.New(core),
		consoleLevel: consoleLevel,
		fileLevel:    fileLevel,
	}, nil
}

// NewDefaultLogger creates a console-only debug logger for startup, before
// the configuration file has been read.
func NewDefaultLogger() (*DynamicLogger, error) {
	return NewLogger(config.LogConfig{
		Level: config.LogLevelDebug,
		Console: config.ConsoleLogConfig{
			Enabled: true,
			Format:  config.LogFormatConsole,
		},
	})
}

// ForceDebug drops all enabled outputs to debug level. Used by the verbose
// CLI flag to override whatever the config file says.
func (dl *DynamicLogger) ForceDebug() {
	if dl.consoleLevel != nil {
		dl.consoleLevel.SetLevel(zap.DebugLevel)
	}
	if dl.fileLevel != nil {
		dl.fileLevel.SetLevel(zap.DebugLevel)
	}
}

// EnsureInfoLevelForShutdown raises quieter outputs to INFO so the shutdown
// sequence is visible in the logs.
func (dl *DynamicLogger) EnsureInfoLevelForShutdown() {
	changed := false
	if dl.consoleLevel != nil && dl.consoleLevel.Level() > zap.InfoLevel {
		dl.consoleLevel.SetLevel(zap.InfoLevel)
		changed = true
	}
	if dl.fileLevel != nil && dl.fileLevel.Level() > zap.InfoLevel {
		dl.fileLevel.SetLevel(zap.InfoLevel)
		changed = true
	}
	if changed {
		dl.Info("Switched to INFO level for shutdown visibility")
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case config.LogLevelDebug:
		return zap.DebugLevel
	case config.LogLevelInfo:
		return zap.InfoLevel
	case config.LogLevelWarn:
		return zap.WarnLevel
	case config.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// resolveLogLevel prefers the per-output level when set, falling back to the
// global one.
func resolveLogLevel(outputLevel string, globalLevel zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLogLevel(outputLevel)
	}
	return globalLevel
}

func createEncoder(format string) zapcore.Encoder {
	if format == config.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == config.LogFormatText {
		// Plain text without color codes, for files.
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func createFileWriter(path string, rotation config.RotationConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	})
}
