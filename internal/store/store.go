package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/homelens/client/internal/model"
)

const (
	tokensFile   = "auth.json"
	userFile     = "user.json"
	deviceIDFile = "device_id"
)

// CredentialStore is the durable key-value persistence for auth tokens,
// user profile, and the device identifier. Reads fail soft: a missing or
// malformed record reads as absent, never as an error.
type CredentialStore interface {
	ReadTokens() (model.TokenSet, bool)
	WriteTokens(model.TokenSet) error
	ClearTokens() error
	ReadUser() (model.UserProfile, bool)
	WriteUser(model.UserProfile) error
	ClearUser() error
	// DeviceID returns the stable per-installation identifier, generating
	// and persisting a fresh one on first call.
	DeviceID() (string, error)
}

type fileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates a CredentialStore keeping each record in its own
// file under dir. The directory is created on demand.
func NewFileStore(fs afero.Fs, dir string) CredentialStore {
	return &fileStore{fs: fs, dir: dir}
}

func (s *fileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readJSON loads a record into out; false means absent or unreadable
func (s *fileStore) readJSON(name string, out interface{}) bool {
	raw, err := afero.ReadFile(s.fs, s.path(name))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Corrupt record: treat as absent rather than surfacing the error.
		return false
	}
	return true
}

func (s *fileStore) writeJSON(name string, v interface{}) error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := afero.WriteFile(s.fs, s.path(name), raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *fileStore) remove(name string) error {
	err := s.fs.Remove(s.path(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (s *fileStore) ReadTokens() (model.TokenSet, bool) {
	var ts model.TokenSet
	if !s.readJSON(tokensFile, &ts) {
		return model.TokenSet{}, false
	}
	// A record missing either expiry is not a usable TokenSet.
	if ts.AccessTokenExpiresAt.IsZero() || ts.RefreshTokenExpiresAt.IsZero() {
		return model.TokenSet{}, false
	}
	return ts, true
}

func (s *fileStore) WriteTokens(ts model.TokenSet) error {
	return s.writeJSON(tokensFile, ts)
}

func (s *fileStore) ClearTokens() error {
	return s.remove(tokensFile)
}

func (s *fileStore) ReadUser() (model.UserProfile, bool) {
	var u model.UserProfile
	if !s.readJSON(userFile, &u) {
		return model.UserProfile{}, false
	}
	if u.Phone == "" {
		return model.UserProfile{}, false
	}
	return u, true
}

func (s *fileStore) WriteUser(u model.UserProfile) error {
	return s.writeJSON(userFile, u)
}

func (s *fileStore) ClearUser() error {
	return s.remove(userFile)
}

func (s *fileStore) DeviceID() (string, error) {
	raw, err := afero.ReadFile(s.fs, s.path(deviceIDFile))
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path(deviceIDFile), []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
