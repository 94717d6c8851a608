package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_DisabledDiscards(t *testing.T) {
	closeFn, err := Init(Options{})
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.False(t, L.Enabled(t.Context(), slog.LevelError))
}

func TestDiscard_DisablesEveryLevel(t *testing.T) {
	l := Discard()
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		require.False(t, l.Enabled(t.Context(), level), level.String())
	}
	require.Same(t, L, Or(nil))
}

func TestInit_WriterText(t *testing.T) {
	t.Cleanup(func() { L = Discard() })

	var buf bytes.Buffer
	_, err := Init(Options{Enabled: true, Writer: &buf, Level: slog.LevelDebug})
	require.NoError(t, err)

	L.Debug("recovered", "subtrees", 3)
	require.Contains(t, buf.String(), "recovered")
	require.Contains(t, buf.String(), "subtrees=3")
}

func TestInit_FileJSON(t *testing.T) {
	t.Cleanup(func() { L = Discard() })

	path := filepath.Join(t.TempDir(), "logs", "framekit.log")
	closeFn, err := Init(Options{Enabled: true, Path: path, JSON: true})
	require.NoError(t, err)

	L.Info("setup", "pages", 512)
	L.Debug("dropped")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"setup"`)
	require.NotContains(t, string(data), "dropped")
}

func TestOr(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	require.Same(t, custom, Or(custom))
	require.Same(t, L, Or(nil))
}
