// Package session persists the Podium session token between CLI runs.
// The session is stored in ~/.podium/session.toml by default.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/s0up4200/podium-go/podium"
)

const defaultSessionPath = "~/.podium/session.toml"

// Session is the on-disk representation
type Session struct {
	Token    string    `toml:"token"`
	Username string    `toml:"username,omitempty"`
	Endpoint string    `toml:"endpoint,omitempty"`
	SavedAt  time.Time `toml:"saved_at"`
}

// FileStore is a podium.TokenStore backed by a TOML file. The file is read
// once on creation; every change is written through immediately.
type FileStore struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	session Session
	loaded  bool
}

var _ podium.TokenStore = (*FileStore)(nil)

// DefaultPath returns the default session file path.
func DefaultPath() string {
	return defaultSessionPath
}

// NewFileStore opens the session file at path, or the default path when
// empty. A missing file yields an empty store.
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve session path: %w", err)
	}

	s := &FileStore{path: resolved, logger: logger}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the resolved file location
func (s *FileStore) Path() string {
	return s.path
}

// Session returns a copy of the stored session
func (s *FileStore) Session() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.loaded
}

// SetIdentity records who the token belongs to; it is written along with
// the next token change.
func (s *FileStore) SetIdentity(username, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Username = username
	s.session.Endpoint = endpoint
}

func (s *FileStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Token = token
	s.session.SavedAt = time.Now().UTC()
	s.loaded = true

	if err := s.save(); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to persist session token")
	}
}

func (s *FileStore) GetToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Token, s.loaded
}

func (s *FileStore) HasToken() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *FileStore) RemoveToken() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = Session{}
	s.loaded = false

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to remove session file")
	}
}

func (s *FileStore) load() error {
	bytes, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := toml.Unmarshal(bytes, &sess); err != nil {
		return fmt.Errorf("parse session %s: %w", s.path, err)
	}

	s.session = sess
	s.loaded = strings.TrimSpace(sess.Token) != ""
	return nil
}

// save must be called with mu held
func (s *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	bytes, err := toml.Marshal(s.session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := os.WriteFile(s.path, bytes, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultSessionPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
