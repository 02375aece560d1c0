package auth

import (
	"os"
)

// EnvironmentStore implements CredentialStore using environment
// variables. It is read-only and serves as the last-resort fallback,
// mainly for containerized deployments where a keychain is unavailable.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables.
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve gets a session from environment variables. The label is
// ignored; the environment holds at most one session.
func (e *EnvironmentStore) Retrieve(label string) (*Session, error) {
	cookie := os.Getenv("TIKTOK_COOKIE")
	if cookie == "" {
		return nil, ErrSessionNotFound
	}

	return &Session{
		Label:     DefaultLabel,
		Cookie:    cookie,
		UserAgent: os.Getenv("TIKTOK_USER_AGENT"),
	}, nil
}

// List returns the environment session if one is set.
func (e *EnvironmentStore) List() ([]*Session, error) {
	session, err := e.Retrieve("")
	if err != nil {
		return []*Session{}, nil
	}
	return []*Session{session}, nil
}

// Delete is not supported for environment variables.
func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}

// Exists checks if a session is present in the environment.
func (e *EnvironmentStore) Exists(label string) bool {
	return os.Getenv("TIKTOK_COOKIE") != ""
}
