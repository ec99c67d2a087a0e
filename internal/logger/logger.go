package logger

import (
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the service.
type Logger interface {
	Info(message string, fields ...any)
	Debug(message string, fields ...any)
	Warn(message string, fields ...any)
	Error(message string, err error, fields ...any)
	Fatal(message string, err error, fields ...any)
	With(fields ...any) Logger
}

type zapLogger struct {
	env    string
	logger *zap.Logger
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)         {}
func (nopLogger) Debug(string, ...any)        {}
func (nopLogger) Warn(string, ...any)         {}
func (nopLogger) Error(string, error, ...any) {}
func (nopLogger) Fatal(string, error, ...any) {}
func (l nopLogger) With(...any) Logger        { return l }

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() Logger {
	return nopLogger{}
}

// NewLogger builds a zap logger. "development" gets the console encoder and
// debug output, anything else gets JSON with ISO8601 timestamps.
func NewLogger(env string) (Logger, error) {
	var cfg zap.Config
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &zapLogger{env: env, logger: l}, nil
}

func (l *zapLogger) Info(message string, fields ...any) {
	l.logger.Info(message, parseFields(fields...)...)
}

func (l *zapLogger) Debug(message string, fields ...any) {
	if l.env == "development" {
		l.logger.Debug(message, parseFields(fields...)...)
	}
}

func (l *zapLogger) Warn(message string, fields ...any) {
	l.logger.Warn(message, parseFields(fields...)...)
}

func (l *zapLogger) Error(message string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	l.logger.Error(message, parseFields(fields...)...)
}

func (l *zapLogger) Fatal(message string, err error, fields ...any) {
	if err == nil {
		err = errors.New("unknown error")
	}
	fields = append(fields, "error", err.Error())
	l.logger.Fatal(message, parseFields(fields...)...)
}

func (l *zapLogger) With(fields ...any) Logger {
	return &zapLogger{env: l.env, logger: l.logger.With(parseFields(fields...)...)}
}

// parseFields turns alternating key/value pairs into zap fields. Non-string
// keys and a trailing odd value are dropped.
func parseFields(kv ...any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}
