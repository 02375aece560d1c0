package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveVideoAndHasVideo(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	assert.False(t, m.HasVideo("creator", "7123456789"))

	path, err := m.SaveVideo(strings.NewReader("video-bytes"), "creator", "7123456789")
	require.NoError(t, err)
	assert.Equal(t, m.VideoPath("creator", "7123456789"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))

	assert.True(t, m.HasVideo("creator", "7123456789"))
	assert.Equal(t, 1, m.DownloadedCount())
}

func TestSaveVideoLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	_, err = m.SaveVideo(strings.NewReader("x"), "creator", "v1")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "creator"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v1.mp4", entries[0].Name())
}

func TestScanExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "creator"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creator", "v9.mp4"), []byte("x"), 0644))
	// partial downloads must not count as finished
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creator", "v8.mp4.tmp"), []byte("x"), 0644))

	m, err := NewManager(dir)
	require.NoError(t, err)

	assert.True(t, m.HasVideo("creator", "v9"))
	assert.False(t, m.HasVideo("creator", "v8"))
	assert.Equal(t, 1, m.DownloadedCount())
}

func TestVideoPathLayout(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	path := m.VideoPath("somecreator", "7001")
	assert.Equal(t, filepath.Join(m.BaseDir(), "somecreator", "7001.mp4"), path)
}
