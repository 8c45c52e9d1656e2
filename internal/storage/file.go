package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"authhub/pkg/logging"
	"authhub/pkg/oauth"
)

const (
	// DefaultTokenStorageDir is the durable store's directory relative to the
	// user's home directory.
	DefaultTokenStorageDir = ".config/authhub/tokens"

	// TokenFileName is the name of the file holding the record.
	TokenFileName = "tokens.json"
)

// FileStore persists the record as JSON on disk.
//
// SECURITY: the file holds live credentials.
//   - The directory is created with 0700 and the file with 0600 permissions.
//   - Writes go to a temporary file that is renamed over the old one, so a
//     concurrent reader sees either the old or the new record.
//   - Corrupt files and expired records without a refresh token are removed on read.
//   - Token values are never logged.
type FileStore struct {
	mu   sync.RWMutex
	dir  string
	path string
	now  func() time.Time
}

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	// Dir is the directory for the token file. Defaults to ~/.config/authhub/tokens.
	Dir string

	// Now overrides time.Now for expiry checks.
	Now func() time.Time
}

// NewFileStore creates the storage directory if needed and returns the store.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultTokenStorageDir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &FileStore{
		dir:  dir,
		path: filepath.Join(dir, TokenFileName),
		now:  now,
	}, nil
}

// Path returns the location of the token file.
func (s *FileStore) Path() string {
	return s.path
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// GetTokens reads the record from disk. Missing files yield (nil, nil).
func (s *FileStore) GetTokens() (*oauth.TokenRecord, error) {
	s.mu.RLock()
	rec, err := s.readTokenFile()
	s.mu.RUnlock()

	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case isCorrupt(err):
		logging.Warn("Storage", "Discarding unreadable token file %s: %v", s.path, err)
		return nil, s.ClearTokens()
	default:
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	if unusable(rec, s.now()) {
		logging.Debug("Storage", "Stored token expired at %s and cannot be refreshed, clearing", rec.ExpiresAt.Format(time.RFC3339))
		return nil, s.ClearTokens()
	}
	return rec, nil
}

// SetTokens replaces the record on disk.
// SECURITY: Token values are never logged, only metadata for the audit trail.
func (s *FileStore) SetTokens(rec *oauth.TokenRecord) error {
	if rec == nil {
		return s.ClearTokens()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeTokenFile(rec); err != nil {
		logging.Audit("token_store_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist token: %w", err)
	}

	logging.Audit("token_stored",
		"path", s.path,
		"expiry", rec.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", rec.RefreshToken != "",
	)
	return nil
}

// ClearTokens removes the token file. A missing file is not an error.
func (s *FileStore) ClearTokens() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	logging.Audit("token_deleted", "path", s.path)
	return nil
}

type corruptError struct{ err error }

func (e *corruptError) Error() string { return "corrupt token file: " + e.err.Error() }
func (e *corruptError) Unwrap() error { return e.err }

func isCorrupt(err error) bool {
	var ce *corruptError
	return errors.As(err, &ce)
}

func (s *FileStore) readTokenFile() (*oauth.TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var rec oauth.TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &corruptError{err: err}
	}
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		return nil, &corruptError{err: errors.New("record holds no credential")}
	}
	return &rec, nil
}

func (s *FileStore) writeTokenFile(rec *oauth.TokenRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}
	return os.Rename(tmpName, s.path)
}
