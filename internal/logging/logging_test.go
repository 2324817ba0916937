package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestOutputSplitterRoutesByLevel(t *testing.T) {
	splitter := &OutputSplitter{}

	tests := []struct {
		name    string
		message []byte
	}{
		{"ErrorLevel", []byte(`time="2026-01-15T10:30:00Z" level=error msg="task failed"`)},
		{"InfoLevel", []byte(`time="2026-01-15T10:30:00Z" level=info msg="scheduler started"`)},
		{"WarnLevel", []byte(`time="2026-01-15T10:30:00Z" level=warning msg="arena near capacity"`)},
		{"EmptyMessage", []byte(``)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := splitter.Write(tt.message)
			assert.NoError(t, err)
			assert.Equal(t, len(tt.message), n)
		})
	}
}

func TestOutputSplitterPatternMatching(t *testing.T) {
	splitter := &OutputSplitter{}

	errorPatterns := [][]byte{
		[]byte("level=error"),
		[]byte("level=error msg=\"test\""),
		[]byte("prefix level=error suffix"),
	}
	for _, pattern := range errorPatterns {
		_, err := splitter.Write(pattern)
		assert.NoError(t, err)
		assert.True(t, bytes.Contains(pattern, []byte("level=error")))
	}

	nonErrorPatterns := [][]byte{
		[]byte("level=info"),
		[]byte("level=warning"),
		[]byte("error in message but level=info"),
	}
	for _, pattern := range nonErrorPatterns {
		_, err := splitter.Write(pattern)
		assert.NoError(t, err)
		assert.False(t, bytes.Contains(pattern, []byte("level=error")))
	}
}

func TestLoggerInitialization(t *testing.T) {
	assert.NotNil(t, Logger)
	_, ok := Logger.Out.(*OutputSplitter)
	assert.True(t, ok, "Logger should use OutputSplitter")
}

func TestNewLoggerAppliesConfig(t *testing.T) {
	logger := NewLogger(Config{Level: LevelDebug, Format: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.Level)
	_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
	_, isSplitter := logger.Out.(*OutputSplitter)
	assert.True(t, isSplitter)
}
