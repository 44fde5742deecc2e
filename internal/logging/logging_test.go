package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "info", Format: "json", Component: "worker", Out: &buf})

	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["message"])
	assert.Equal(t, "worker", lines[0]["component"])
	assert.Contains(t, lines[0], "time")
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Level: "loud", Format: "json", Out: &buf})

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestAutoFormatOnBufferIsJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: "auto", Out: &buf}).Info().Msg("x")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: "console", Out: &buf}).Info().Msg("hello")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), "hello")
}

func TestLogFnLevels(t *testing.T) {
	var buf bytes.Buffer
	logFn := LogFn(New(Options{Level: "debug", Format: "json", Out: &buf}))

	logFn("debug", "d")
	logFn("info", "   - Queue: jobs:v1:reconcile")
	logFn("success", "Job done")
	logFn("warning", "w")
	logFn("error", "e")
	logFn("other", "o")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 6)

	levels := make([]string, len(lines))
	for i, l := range lines {
		levels[i] = l["level"].(string)
	}
	assert.Equal(t, []string{"debug", "info", "info", "warn", "error", "info"}, levels)
	assert.Equal(t, "Queue: jobs:v1:reconcile", lines[1]["message"])
	assert.Equal(t, "success", lines[2]["outcome"])
}
