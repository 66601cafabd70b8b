package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	_, err := NewLogger(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestLoggerWithFields(t *testing.T) {
	logger, err := NewLogger(Options{Level: "error", Format: "console"})
	require.NoError(t, err)

	scoped := logger.WithFields(Fields{"component": "test"})
	require.NotNil(t, scoped)

	// below the configured level, must not panic
	scoped.Debug("ignored", Fields{"frame": 1})
	scoped.Error(errors.New("boom"), "reported", Fields{"frame": 2})
}

func TestDefaultLoggerReplacement(t *testing.T) {
	nop := NewNopLogger()
	SetDefaultLogger(nop)
	t.Cleanup(func() { SetDefaultLogger(nil) })

	assert.Same(t, nop, NewDefaultLogger())
	assert.NotNil(t, WithFields(Fields{"component": "x"}))
}
