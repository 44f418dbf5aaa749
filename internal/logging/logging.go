// Package logging builds the process logger and installs it into the
// featurekit packages.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/featurekit"
	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/config"
	"github.com/wippyai/featurekit/host"
	"github.com/wippyai/featurekit/registry"
	"github.com/wippyai/featurekit/service"
	"github.com/wippyai/featurekit/session"
	"github.com/wippyai/featurekit/split"
)

// New creates a logger from cfg. Output goes to stderr unless paths are
// given.
func New(cfg config.LogConfig, outputPaths ...string) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build()
}

// NewOrNop is New with a no-op fallback.
func NewOrNop(cfg config.LogConfig, outputPaths ...string) *zap.Logger {
	l, err := New(cfg, outputPaths...)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Install sets l as the package logger of every featurekit package, each
// under its own name.
func Install(l *zap.Logger) {
	featurekit.SetLogger(l.Named("featurekit"))
	classloader.SetLogger(l.Named("classloader"))
	host.SetLogger(l.Named("host"))
	registry.SetLogger(l.Named("registry"))
	service.SetLogger(l.Named("service"))
	session.SetLogger(l.Named("session"))
	split.SetLogger(l.Named("split"))
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return cfg
}
