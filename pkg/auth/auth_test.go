package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	t.Setenv("TIKTOK_DOWNLOADER_PASSPHRASE", "test-passphrase")

	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "sessions.enc"))
	require.NoError(t, err)
	return store
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	session := &Session{
		Label:     "default",
		Cookie:    "sessionid=abc123def456",
		UserAgent: "Mozilla/5.0",
	}
	require.NoError(t, store.Store(session))

	got, err := store.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, session.Cookie, got.Cookie)
	assert.Equal(t, session.UserAgent, got.UserAgent)

	assert.True(t, store.Exists("default"))
	assert.False(t, store.Exists("other"))
}

func TestEncryptedStoreRetrieveMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Retrieve("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEncryptedStoreDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Store(&Session{Label: "a", Cookie: "sessionid=a"}))
	require.NoError(t, store.Store(&Session{Label: "b", Cookie: "sessionid=b"}))

	require.NoError(t, store.Delete("a"))
	assert.False(t, store.Exists("a"))
	assert.True(t, store.Exists("b"))

	assert.ErrorIs(t, store.Delete("a"), ErrSessionNotFound)
}

func TestEncryptedStoreList(t *testing.T) {
	store := newTestStore(t)

	sessions, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	require.NoError(t, store.Store(&Session{Label: "a", Cookie: "sessionid=a"}))
	require.NoError(t, store.Store(&Session{Label: "b", Cookie: "sessionid=b"}))

	sessions, err = store.List()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("TIKTOK_COOKIE", "sessionid=fromenv")
	t.Setenv("TIKTOK_USER_AGENT", "EnvAgent/1.0")

	store := NewEnvironmentStore()

	session, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "sessionid=fromenv", session.Cookie)
	assert.Equal(t, "EnvAgent/1.0", session.UserAgent)

	assert.ErrorIs(t, store.Store(&Session{Label: "x", Cookie: "y"}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestEnvironmentStoreEmpty(t *testing.T) {
	t.Setenv("TIKTOK_COOKIE", "")

	store := NewEnvironmentStore()
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, store.Exists(""))
}

func TestSanitizeSession(t *testing.T) {
	session := &Session{
		Label:  "default",
		Cookie: "sessionid=verysecretvalue12345",
	}

	masked := SanitizeSession(session)
	assert.NotEqual(t, session.Cookie, masked.Cookie)
	assert.Contains(t, masked.Cookie, "...")
	// original untouched
	assert.Equal(t, "sessionid=verysecretvalue12345", session.Cookie)

	assert.Equal(t, "********", SanitizeSession(&Session{Cookie: "short"}).Cookie)
	assert.Nil(t, SanitizeSession(nil))
}
