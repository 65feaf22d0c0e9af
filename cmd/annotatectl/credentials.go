package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kgcorpus/tagging-console/pkg/backend"
)

const credentialFileName = "credential.json"

// savedCredential is what login leaves on disk.
type savedCredential struct {
	APIBaseURL string              `json:"api_base_url"`
	Username   string              `json:"username"`
	Credential *backend.Credential `json:"credential"`
	SavedAt    time.Time           `json:"saved_at"`
}

// credentialStore keeps one credential file, readable only by its owner.
type credentialStore struct {
	path string
}

// newCredentialStore uses dir, or <user config dir>/annotatectl when empty.
func newCredentialStore(dir string) (*credentialStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		dir = filepath.Join(base, "annotatectl")
	}
	return &credentialStore{path: filepath.Join(dir, credentialFileName)}, nil
}

// Load returns the saved credential, or nil when there is none.
func (s *credentialStore) Load() (*savedCredential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	var sc savedCredential
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("corrupt credential file %s: %w", s.path, err)
	}
	return &sc, nil
}

// Save replaces the stored credential.
func (s *credentialStore) Save(sc *savedCredential) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(s.path), err)
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Remove deletes the stored credential. A missing file is not an error.
func (s *credentialStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
