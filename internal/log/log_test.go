package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	Setup(LevelDebug, "json", &buf)
	t.Cleanup(func() { Setup(LevelInfo, "console", nil) })

	Info("fetch done", "events", 3, "view", "week", 42, "ignored-key", "dangling")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "fetch done", entry["message"])
	assert.EqualValues(t, 3, entry["events"])
	assert.Equal(t, "week", entry["view"])
	assert.NotContains(t, entry, "dangling")
}

func TestErrorAttachesErr(t *testing.T) {
	var buf bytes.Buffer
	Setup(LevelInfo, "json", &buf)
	t.Cleanup(func() { Setup(LevelInfo, "console", nil) })

	Error("fetch failed", errors.New("boom"), "status", 502)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 502, entry["status"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Setup(LevelWarn, "json", &buf)
	t.Cleanup(func() { Setup(LevelInfo, "console", nil) })

	Debug("hidden")
	Info("hidden too")
	Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}
