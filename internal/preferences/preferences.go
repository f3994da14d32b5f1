// Package preferences stores per-user settings as opaque JSON.
package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
)

// Preferences is pass-through: unknown keys are kept as-is.
type Preferences map[string]any

// Defaults returns the settings a new user starts with.
func Defaults() Preferences {
	return Preferences{
		"theme":          "dark",
		"notifications":  true,
		"anonymous_mode": false,
		"voice_enabled":  true,
	}
}

// Clone returns a shallow copy.
func (p Preferences) Clone() Preferences {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Store keeps one preferences.json per user under <dataDir>/users/<userID>/.
type Store struct {
	dataDir string
}

func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) path(userID string) string {
	return filepath.Join(s.dataDir, "users", userID, "preferences.json")
}

// Load returns the stored preferences, or Defaults when none are stored.
// On a read or decode error Defaults are returned together with the error.
func (s *Store) Load(userID string) (Preferences, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("read preferences: %w", err)
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Defaults(), fmt.Errorf("decode preferences: %w", err)
	}
	if p == nil {
		return Defaults(), nil
	}
	return p, nil
}

// Save writes p for userID, creating the user directory as needed.
func (s *Store) Save(userID string, p Preferences) error {
	path := s.path(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create preferences directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}
