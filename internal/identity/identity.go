// Package identity provides the stable anonymous id of the local user.
package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/comigor/dudil-go/internal/logger"
)

// DefaultMarkerFile is the marker file name inside the data dir.
const DefaultMarkerFile = ".user_id"

var userIDPattern = regexp.MustCompile(`^user_[0-9a-f]{16}$`)

// Provider reads or creates the user id stored in a marker file.
//
// Two processes that start before the marker exists can each create a
// different id; the last write wins on disk. That race is accepted for a
// single-user tool.
type Provider struct {
	path string

	once sync.Once
	id   string
}

// NewProvider returns a provider for the marker file at path.
func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// GetOrCreateUserID returns the stored id, or generates and stores a new
// one. A failed write is logged and the id is still returned; it simply
// won't be recognized on the next run. The result is fixed for the life of
// the Provider.
func (p *Provider) GetOrCreateUserID() string {
	p.once.Do(func() {
		if id, err := p.read(); err == nil && id != "" {
			if !IsGenerated(id) {
				logger.L.Info("using stored user id of unrecognized shape", "path", p.path, "user_id", id)
			}
			p.id = id
			return
		} else if err != nil {
			logger.L.Warn("could not read stored user id", "path", p.path, "error", err)
		}

		p.id = NewUserID()
		if err := p.store(p.id); err != nil {
			logger.L.Warn("could not persist user id; it will not survive a restart", "path", p.path, "error", err)
			return
		}
		logger.L.Info("created user id", "path", p.path)
	})
	return p.id
}

func (p *Provider) read() (string, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *Provider) store(id string) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	return os.WriteFile(p.path, []byte(id), 0o600)
}

// NewUserID returns "user_" followed by 16 random hex characters.
func NewUserID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// IsGenerated reports whether id has the shape produced by NewUserID.
// Stored ids of any shape are still accepted.
func IsGenerated(id string) bool {
	return userIDPattern.MatchString(id)
}
