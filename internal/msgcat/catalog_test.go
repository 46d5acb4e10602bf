package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_EmbeddedDefaults(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	for _, k := range []string{
		"session.prompt", "session.champion", "session.failed", "failure.lookup",
		"reject.busy", "rankings.row", "help", "unknown",
	} {
		require.True(t, c.Has(k), k)
	}

	out, err := c.Render("session.champion", map[string]any{
		"Champion": "Family", "Eliminated": 4, "Votes": 4, "Prefix": "!k",
	})
	require.NoError(t, err)
	require.Contains(t, out, "It seems Family is the most important thing to you.")
}

func TestRender_MissingDataIsAnError(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	_, err = c.Render("session.prompt", map[string]any{"Left": "a"})
	require.Error(t, err)
	require.Equal(t, "fallback", c.Text("session.prompt", map[string]any{}, "fallback"))

	_, err = c.Render("no.such.key", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNew_OverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("reject:\n  busy: \"wait\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	c, err := New(dir)
	require.NoError(t, err)
	out, err := c.Render("reject.busy", nil)
	require.NoError(t, err)
	require.Equal(t, "wait", out)
}

func TestNew_OverrideErrors(t *testing.T) {
	t.Run("duplicate key", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("unknown: a\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("unknown: b\n"), 0o644))
		_, err := New(dir)
		require.ErrorContains(t, err, "duplicate override key")
	})
	t.Run("bad template", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("unknown: \"{{.Prefix\"\n"), 0o644))
		_, err := New(dir)
		require.Error(t, err)
	})
	t.Run("non-string leaf", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("limit: 3\n"), 0o644))
		_, err := New(dir)
		require.ErrorContains(t, err, "unsupported value")
	})
}
