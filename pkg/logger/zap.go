package logger

import (
	"context"
	"errors"
	"log/slog"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// zapLogger implements Logger on a zap core with JSON output.
type zapLogger struct {
	z *zap.Logger
}

func initZap() error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	// Caller is added as "source" the same way the slog backend does.
	cfg.DisableCaller = true
	z, err := cfg.Build()
	if err != nil {
		return err
	}
	zapLevel.SetLevel(toZapLevel(levelVar.Level()))
	global = &zapLogger{z: z}
	syncFn = func() error {
		err := z.Sync()
		// stdout cannot be fsynced when it is a pipe or terminal.
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
	return nil
}

func toZapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) Info(_ context.Context, msg string, fields ...Field) {
	fields = append(fields, String("source", getCaller()))
	l.z.Info(msg, zapFields(fields)...)
}

func (l *zapLogger) Error(_ context.Context, msg string, fields ...Field) {
	fields = append(fields, String("source", getCaller()))
	l.z.Error(msg, zapFields(fields)...)
}

func (l *zapLogger) Debug(_ context.Context, msg string, fields ...Field) {
	fields = append(fields, String("source", getCaller()))
	l.z.Debug(msg, zapFields(fields)...)
}

func (l *zapLogger) Warn(_ context.Context, msg string, fields ...Field) {
	fields = append(fields, String("source", getCaller()))
	l.z.Warn(msg, zapFields(fields)...)
}

func (l *zapLogger) Fatal(_ context.Context, msg string, fields ...Field) {
	fields = append(fields, String("source", getCaller()))
	l.z.Fatal(msg, zapFields(fields)...)
}
