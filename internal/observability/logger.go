// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/gatecrash/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// ANSI codes for console level colorization.
var colorMap = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

const colorReset = "\x1b[0m"

// InitializeLogger sets up the global zap logger from configuration. The
// console core always writes to stdout; when LogFile is set a rotating JSON
// core is teed in via lumberjack.
func InitializeLogger(cfg config.LoggerConfig) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{
			zapcore.NewCore(newEncoder(cfg), zapcore.Lock(os.Stdout), level),
		}

		if cfg.LogFile != "" {
			fileEncoder := newEncoder(config.LoggerConfig{Format: "json"})
			fileWriter := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(fileEncoder, fileWriter, level))
		}

		options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			options = append(options, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), options...).Named(cfg.ServiceName)
		globalLogger.Store(logger)

		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// newColorizedLevelEncoder colorizes the level token per the configured
// palette, falling back to plain text for unknown colors.
func newColorizedLevelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	return func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var color string
		switch level {
		case zapcore.DebugLevel:
			color = colorMap[colors.Debug]
		case zapcore.InfoLevel:
			color = colorMap[colors.Info]
		case zapcore.WarnLevel:
			color = colorMap[colors.Warn]
		case zapcore.ErrorLevel:
			color = colorMap[colors.Error]
		default:
			color = colorMap[colors.Fatal]
		}

		levelStr := strings.ToUpper(level.String())
		if color != "" {
			enc.AppendString(color + levelStr + colorReset)
		} else {
			enc.AppendString(levelStr)
		}
	}
}

func newEncoder(cfg config.LoggerConfig) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = newColorizedLevelEncoder(cfg.Colors)
		return zapcore.NewConsoleEncoder(encoderConfig)
	}

	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns the initialized global logger, or a development fallback
// when initialization has not happened yet (mostly early startup errors).
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// Sync flushes any buffered log entries.
func Sync() {
	if logger := globalLogger.Load(); logger != nil {
		if err := logger.Sync(); err != nil {
			fmt.Fprintln(os.Stderr, "error: failed to sync logger:", err)
		}
	}
}
