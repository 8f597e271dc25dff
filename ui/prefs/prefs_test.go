package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "preferences.json")

	p := LoadFrom(path)
	assert.Equal(t, "0", p.String(KeySource, "0"))
	assert.Equal(t, 1, p.Int(KeyViewMode, 1))
	assert.False(t, p.Dirty())

	p.SetString(KeySource, "rtsp://cam/1")
	p.SetInt(KeyViewMode, 2)
	assert.True(t, p.Dirty())
	require.NoError(t, p.Save())
	assert.False(t, p.Dirty())

	again := LoadFrom(path)
	assert.Equal(t, "rtsp://cam/1", again.String(KeySource, ""))
	assert.Equal(t, 2, again.Int(KeyViewMode, 0))
}

func TestSetSameValueIsClean(t *testing.T) {
	p := LoadFrom(filepath.Join(t.TempDir(), "p.json"))
	p.SetString(KeySaveDir, "/tmp")
	require.NoError(t, p.Save())

	p.SetString(KeySaveDir, "/tmp")
	assert.False(t, p.Dirty())
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	p := LoadFrom(path)
	assert.Equal(t, "fallback", p.String(KeySource, "fallback"))
	assert.Equal(t, path, p.Path())
}

func TestWrongType(t *testing.T) {
	p := LoadFrom(filepath.Join(t.TempDir(), "p.json"))
	p.SetInt(KeySource, 3)
	assert.Equal(t, "x", p.String(KeySource, "x"))
}
