package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, "level %q", in)
		assert.Equal(t, want, lvl, "level %q", in)
	}
	_, err := ParseLevel("loud")
	assert.EqualError(t, err, `unknown log level "loud"`)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn, FormatText)
	log.Info("dropped")
	log.Warn("kept", "chapter", "a.md")
	assert.Equal(t, "level=WARN msg=kept chapter=a.md\n", buf.String())

	buf.Reset()
	log = New(&buf, slog.LevelDebug, FormatJSON)
	log.Debug("hello", "n", 1)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, map[string]interface{}{
		"level": "DEBUG",
		"msg":   "hello",
		"n":     1.0,
	}, rec)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}

func TestInit(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log, err := Init(&buf, "warn", "json")
	require.NoError(t, err)
	assert.Equal(t, log, slog.Default())
	slog.Info("dropped")
	slog.Warn("kept")
	assert.Equal(t, `{"level":"WARN","msg":"kept"}`+"\n", buf.String())

	_, err = Init(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = Init(&buf, "info", "xml")
	assert.Error(t, err)
}
