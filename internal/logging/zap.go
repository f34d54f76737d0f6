package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap SugaredLogger to the Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production zap logger at the given level
// ("debug", "info", "warn", "error"). format "console" switches to the
// development encoder; anything else emits JSON.
func NewZapLogger(level, format string) (*ZapLogger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &ZapLogger{sugar: l.Sugar()}, nil
}

// WrapZap wraps an existing sugared logger.
func WrapZap(s *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{sugar: s}
}

func toKeysAndValues(fields []Field) []any {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

func (z *ZapLogger) Debug(msg string, fields ...Field) {
	z.sugar.Debugw(msg, toKeysAndValues(fields)...)
}

func (z *ZapLogger) Info(msg string, fields ...Field) {
	z.sugar.Infow(msg, toKeysAndValues(fields)...)
}

func (z *ZapLogger) Warn(msg string, fields ...Field) {
	z.sugar.Warnw(msg, toKeysAndValues(fields)...)
}

func (z *ZapLogger) Error(msg string, fields ...Field) {
	z.sugar.Errorw(msg, toKeysAndValues(fields)...)
}

func (z *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{sugar: z.sugar.With(toKeysAndValues(fields)...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}
