// Package logging builds the zap logger used by every binary and adapts it to
// the small leveled Logger interface the library packages accept.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a standard interface for structured, leveled logging.
// args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Zap adapts a zap.SugaredLogger to Logger.
type Zap struct {
	sugar *zap.SugaredLogger
}

func NewZap(l *zap.Logger) *Zap {
	return &Zap{sugar: l.Sugar()}
}

func (z *Zap) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *Zap) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *Zap) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *Zap) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// With returns a child logger carrying the given key/value pairs.
func (z *Zap) With(args ...any) *Zap {
	return &Zap{sugar: z.sugar.With(args...)}
}

// Sync flushes buffered entries.
func (z *Zap) Sync() error { return z.sugar.Sync() }

// Nop returns a Logger that discards everything.
func Nop() *Zap {
	return NewZap(zap.NewNop())
}

// New builds a production zap logger at level ("debug", "info", ...) with
// format "json" or "console".
func New(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	switch strings.ToLower(format) {
	case "", "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
