package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AutoFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("auto", "info", &buf)
	require.NoError(t, err)

	log.Info("frame ingested", "labels", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "frame ingested", entry["msg"])
	assert.Equal(t, float64(3), entry["labels"])
}

func TestNew_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("text", "warn", &buf)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown", "ip", "1.2.3.4")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "ip=1.2.3.4")
}

func TestNew_Rejects(t *testing.T) {
	_, err := New("xml", "info", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("json", "loud", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}
