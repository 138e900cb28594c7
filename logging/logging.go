// Package logging adapts go.uber.org/zap to dugout.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	dugout "github.com/AshkanYarmoradi/go-dugout"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var _ dugout.Logger = (*Zap)(nil)

// Zap is a dugout.Logger backed by a sugared zap logger. Key-value pairs
// are passed through as zap's loosely typed fields.
type Zap struct {
	sugar *zap.SugaredLogger
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) *Zap {
	return &Zap{sugar: l.Sugar()}
}

// Options configures New.
type Options struct {
	Level  string
	Format string
	Output io.Writer
	Caller bool
}

// New builds a logger writing to opts.Output (stderr by default).
func New(opts Options) (*Zap, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("dugout/logging: unknown format %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)

	var zopts []zap.Option
	if opts.Caller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return Wrap(zap.New(core, zopts...)), nil
}

// ParseLevel maps debug, info, warn and error to zap levels. An empty
// string is info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("dugout/logging: unknown level %q", s)
}

func (z *Zap) Debug(msg string, args ...interface{}) { z.sugar.Debugw(msg, args...) }
func (z *Zap) Info(msg string, args ...interface{})  { z.sugar.Infow(msg, args...) }
func (z *Zap) Warn(msg string, args ...interface{})  { z.sugar.Warnw(msg, args...) }
func (z *Zap) Error(msg string, args ...interface{}) { z.sugar.Errorw(msg, args...) }

// With returns a logger that adds args to every record.
func (z *Zap) With(args ...interface{}) *Zap {
	return &Zap{sugar: z.sugar.With(args...)}
}

// Sync flushes buffered records.
func (z *Zap) Sync() error {
	return z.sugar.Sync()
}
