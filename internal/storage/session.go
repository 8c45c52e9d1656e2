package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"authhub/pkg/logging"
)

// SessionStore is a FileStore whose directory lives for one login session.
//
// The directory is created under $XDG_RUNTIME_DIR/authhub, which the system
// clears at logout, or under the OS temp directory when that variable is unset.
// Close removes it explicitly.
type SessionStore struct {
	*FileStore
	sessionID string
}

// SessionStoreConfig configures a SessionStore.
type SessionStoreConfig struct {
	// SessionID names the session directory. Defaults to a random uuid, which
	// makes the store private to the process that created it.
	SessionID string

	// BaseDir overrides the runtime directory.
	BaseDir string

	Now func() time.Time
}

// NewSessionStore creates the session directory and returns the store.
func NewSessionStore(cfg SessionStoreConfig) (*SessionStore, error) {
	id := cfg.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	base := cfg.BaseDir
	if base == "" {
		base = sessionBaseDir()
	}

	fs, err := NewFileStore(FileStoreConfig{
		Dir: filepath.Join(base, id),
		Now: cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	return &SessionStore{FileStore: fs, sessionID: id}, nil
}

// SessionID returns the identifier of this session.
func (s *SessionStore) SessionID() string {
	return s.sessionID
}

// Close deletes the session directory and everything in it.
func (s *SessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	logging.Audit("session_store_closed", "session_id", s.sessionID)
	return nil
}

func sessionBaseDir() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "authhub")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("authhub-%d", os.Getuid()))
}
