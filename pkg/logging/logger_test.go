package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewStructuredLogger("test-service", "1.2.3", level)
	l.SetOutput(&buf)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{" WARN ", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInfoWritesStructuredJSON(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	ctx := WithRequestID(context.Background(), "req-42")

	l.Info(ctx, "[TEST] hello", Fields{"records": 3})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "[TEST] hello", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test-service", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Contains(t, entry, "timestamp")
	fields, ok := entry["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), fields["records"])
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel)
	ctx := context.Background()

	l.Debug(ctx, "debug", nil)
	l.Info(ctx, "info", nil)
	l.Warn(ctx, "warn", nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["message"])
}

func TestErrorIncludesCallerAndError(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)

	l.Error(context.Background(), "[TEST_ERROR] failed", Fields{}, errors.New("disk full"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "disk full", lines[0]["error"])
	assert.Contains(t, lines[0]["file"], "logger_test.go")
}

func TestFatalExitsAfterLogging(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal(context.Background(), "[TEST_FATAL] stop", nil, errors.New("boom"))

	assert.Equal(t, 1, code)
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, true, lines[0]["fatal"])
	assert.Contains(t, lines[0], "stack_trace")
}

func TestContextLoggerMergesFields(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel)

	l.WithFields(Fields{"source": "crop", "stage": "prepare"}).
		Info(context.Background(), "merged", Fields{"stage": "merge"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	fields := lines[0]["fields"].(map[string]interface{})
	assert.Equal(t, "crop", fields["source"])
	assert.Equal(t, "merge", fields["stage"], "call fields override bound fields")
}

func TestRequestIDMissing(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}
