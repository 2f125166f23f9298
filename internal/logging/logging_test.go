package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := LevelFromString(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := LevelFromString("loud")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, JSONFormat, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, TextFormat, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn, JSONFormat)
	log.Info("hidden")
	log.Warn("shown", "repo_id", "r1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "r1", entry["repo_id"])
}

func TestNewDiscard(t *testing.T) {
	t.Parallel()
	log := NewDiscard()
	assert.False(t, log.Enabled(t.Context(), slog.LevelError))
}
