package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_JSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: zapcore.InfoLevel, Console: true, Format: "json", Stdout: &buf})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("tournament_vote_recorded", zap.Int64("winner", 1))
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "tournament_vote_recorded", entry["msg"])
	require.Equal(t, "info", entry["level"])
	require.EqualValues(t, 1, entry["winner"])
}

func TestNew_FileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "k1l1.log")
	l, err := New(Options{Level: zapcore.InfoLevel, ToFile: true, File: path, Format: "legacy"})
	require.NoError(t, err)
	l.Warn("wordapi_request_failed")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "WARN | ")
	require.Contains(t, string(data), "wordapi_request_failed")
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_TO_CONSOLE", "")
	t.Setenv("LOG_CALLER", "")

	o := OptionsFromEnv()
	require.Equal(t, zapcore.WarnLevel, o.Level)
	require.False(t, o.ToFile)
	require.True(t, o.Console)
	require.Equal(t, "json", o.Format)
	require.Equal(t, filepath.Join("logs", "k1l1.log"), o.File)
}

func TestSetGlobal(t *testing.T) {
	prev := L()
	t.Cleanup(func() { SetGlobal(prev) })

	SetGlobal(nil)
	require.NotNil(t, L())
	l := zap.NewExample()
	SetGlobal(l)
	require.Same(t, l, L())
}
