package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// UserView is the cached profile of the signed-in user. Tokens are never part
// of it; they live only in the HTTP client's cookie jar.
type UserView struct {
	UserID   uint64 `json:"userId"`
	Email    string `json:"email"`
	Nombre   string `json:"nombre,omitempty"`
	Apellido string `json:"apellido,omitempty"`
	Rol      string `json:"rol"`
}

// Storage persists the user view-model between process runs so the client can
// render the last known identity before the first round trip.
type Storage interface {
	Load() (*UserView, error)
	Save(UserView) error
	Clear() error
}

// FileStorage keeps the view-model in a JSON file.
type FileStorage struct {
	Path string
}

func NewFileStorage(path string) *FileStorage { return &FileStorage{Path: path} }

// Load returns (nil, nil) when no state has been saved yet.
func (s *FileStorage) Load() (*UserView, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var u UserView
	if err := json.Unmarshal(raw, &u); err != nil {
		// Corrupt state is treated as absent, not fatal.
		return nil, nil
	}
	return &u, nil
}

func (s *FileStorage) Save(u UserView) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, raw, 0o600)
}

func (s *FileStorage) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// memoryStorage backs tests and callers that do not want persistence.
type memoryStorage struct {
	u *UserView
}

func NewMemoryStorage() Storage { return &memoryStorage{} }

func (m *memoryStorage) Load() (*UserView, error) { return m.u, nil }
func (m *memoryStorage) Save(u UserView) error    { m.u = &u; return nil }
func (m *memoryStorage) Clear() error             { m.u = nil; return nil }
