package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"WARN":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLogLevel(input), "level %q", input)
	}
}

func TestGetBootstrapsWithoutInit(t *testing.T) {
	logger := Get()
	assert.NotNil(t, logger)
	assert.Same(t, logger, Get())
}
