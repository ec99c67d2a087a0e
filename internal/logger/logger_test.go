package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseFields(t *testing.T) {
	tests := []struct {
		name string
		kv   []any
		want int
	}{
		{name: "empty", kv: nil, want: 0},
		{name: "pairs", kv: []any{"a", 1, "b", "two"}, want: 2},
		{name: "odd trailing value dropped", kv: []any{"a", 1, "b"}, want: 1},
		{name: "non string key skipped", kv: []any{42, "x", "ok", true}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, parseFields(tt.kv...), tt.want)
		})
	}
}

func TestZapLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{env: "development", logger: zap.New(core)}

	l.With("request_id", "abc").Error("upstream failed", errors.New("boom"), "status", 502)
	l.Debug("debug line")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "upstream failed", entries[0].Message)
		assert.Equal(t, "abc", ctx["request_id"])
		assert.Equal(t, "boom", ctx["error"])
		assert.EqualValues(t, 502, ctx["status"])
	}
}

func TestDebugSuppressedOutsideDevelopment(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{env: "production", logger: zap.New(core)}

	l.Debug("hidden")
	l.Warn("shown")

	assert.Equal(t, 1, logs.Len())
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.Info("ignored", "k", "v")
	assert.NotNil(t, l.With("k", "v"))
}
