package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, `"msg":"hello"`)
	assert.Contains(t, out, `"key":"value"`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Debug("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestPrettyWithoutColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, nil))
	log.With("run", "abc").WithGroup("epoch").Info("done", "loss", 0.25, "note", "two words", "took", 1500*time.Millisecond)

	out := buf.String()
	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "INFO  done")
	assert.Contains(t, out, "run=abc")
	assert.Contains(t, out, "epoch.loss=0.25")
	assert.Contains(t, out, `epoch.note="two words"`)
	assert.Contains(t, out, "epoch.took=1.5s")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestPrettyColorAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelDebug)
	log.Debug("debug msg")
	log.Error("boom")

	out := buf.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, colorRed)
}

func TestPrettyGroupValue(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, &PrettyOptions{Level: slog.LevelInfo}))
	log.Info("cpu", slog.Group("info", "cores", 8, "brand", "x"))
	assert.Contains(t, buf.String(), "info={cores=8 brand=x}")
}

func TestNewWithFormat(t *testing.T) {
	t.Parallel()
	for _, format := range []string{"", "text", "json", "pretty", "JSON"} {
		var buf bytes.Buffer
		log, err := NewWithFormat(&buf, format, "debug")
		require.NoError(t, err, format)
		log.Debug("visible")
		assert.Contains(t, buf.String(), "visible", format)
	}

	_, err := NewWithFormat(&bytes.Buffer{}, "xml", "info")
	require.Error(t, err)
	_, err = NewWithFormat(&bytes.Buffer{}, "text", "verbose")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestContext(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	assert.NotNil(t, FromContext(context.Background()))
	assert.NotPanics(t, func() { Nop().Error("nothing") })
}
