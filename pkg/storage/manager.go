package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Manager handles video file storage. Videos land under
// baseDir/<username>/<videoID>.mp4 and every write goes through a
// temporary file so a crashed download never leaves a half-written mp4
// that a later resume would mistake for a finished one.
type Manager struct {
	baseDir string
	// existing caches known files per "username/videoID" key
	existing map[string]bool
	mu       sync.RWMutex
}

// NewManager creates a storage manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	m := &Manager{
		baseDir:  baseDir,
		existing: make(map[string]bool),
	}

	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return m, nil
}

// scanExistingFiles walks the per-user directories for already
// downloaded videos.
func (m *Manager) scanExistingFiles() error {
	users, err := os.ReadDir(m.baseDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, user := range users {
		if !user.IsDir() {
			continue
		}
		videos, err := os.ReadDir(filepath.Join(m.baseDir, user.Name()))
		if err != nil {
			continue
		}
		for _, v := range videos {
			if v.IsDir() || filepath.Ext(v.Name()) != ".mp4" {
				continue
			}
			videoID := v.Name()[:len(v.Name())-4]
			m.existing[user.Name()+"/"+videoID] = true
		}
	}

	return nil
}

// VideoPath returns the on-disk path for a user's video.
func (m *Manager) VideoPath(username, videoID string) string {
	return filepath.Join(m.baseDir, username, videoID+".mp4")
}

// HasVideo checks if a video file already exists on disk.
func (m *Manager) HasVideo(username, videoID string) bool {
	key := username + "/" + videoID

	m.mu.RLock()
	cached := m.existing[key]
	m.mu.RUnlock()
	if cached {
		return true
	}

	if _, err := os.Stat(m.VideoPath(username, videoID)); err == nil {
		m.mu.Lock()
		m.existing[key] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// SaveVideo writes video data from r and returns the final path.
func (m *Manager) SaveVideo(r io.Reader, username, videoID string) (string, error) {
	if err := os.MkdirAll(filepath.Join(m.baseDir, username), 0755); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}

	filename := m.VideoPath(username, videoID)

	tempFile := filename + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to save video data: %w", err)
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.existing[username+"/"+videoID] = true
	m.mu.Unlock()

	return filename, nil
}

// BaseDir returns the download root directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// DownloadedCount returns the number of known downloaded videos.
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.existing)
}
