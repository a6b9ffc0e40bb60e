// Package logging builds the zap logger shared by every docchat component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Opts configures New.
type Opts struct {
	File    string    // rotated JSON log; empty disables the file core
	Level   string    // debug, info, warn or error; defaults to info
	Console io.Writer // optional human-readable sink, warn and above
}

// New returns a logger teeing a rotating JSON file and an optional console.
// The returned close func flushes and closes the file.
func New(opts Opts) (*zap.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("logging: level %q: %w", opts.Level, err)
		}
	}

	var (
		cores   []zapcore.Core
		rotator *lumberjack.Logger
	)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig()),
			zapcore.AddSync(rotator),
			level,
		))
	}
	if opts.Console != nil {
		consoleLevel := zapcore.WarnLevel
		if level > consoleLevel {
			consoleLevel = level
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(opts.Console)),
			consoleLevel,
		))
	}
	if len(cores) == 0 {
		return zap.NewNop(), func() error { return nil }, nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() error {
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "message"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}
