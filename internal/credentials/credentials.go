// Package credentials stores the session token and organization ID used to
// talk to the usage API.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xikxp1/claude-monitor/internal/logger"
)

// ErrNotFound is returned by Load when no credentials have been saved.
var ErrNotFound = errors.New("credentials not found")

// Credentials is a session token paired with the organization it belongs to.
type Credentials struct {
	OrganizationID string `json:"organization_id"`
	SessionToken   string `json:"session_token"`
}

// Store persists credentials between runs.
type Store interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Delete() error
}

// FileStore keeps credentials in a mode-0600 JSON file.
type FileStore struct {
	filePath string
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(filePath string) (*FileStore, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}
	return &FileStore{filePath: filePath}, nil
}

// Load reads saved credentials. Returns ErrNotFound when the file does not
// exist or holds an empty token.
func (s *FileStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if creds.SessionToken == "" {
		return nil, ErrNotFound
	}
	return &creds, nil
}

// Save writes credentials atomically with owner-only permissions.
func (s *FileStore) Save(creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Delete removes saved credentials. Deleting absent credentials is not an
// error.
func (s *FileStore) Delete() error {
	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete credentials file: %w", err)
	}
	return nil
}
