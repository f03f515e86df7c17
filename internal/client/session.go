package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSession is returned by SessionStore.Load when nobody is logged in.
var ErrNoSession = errors.New("not logged in")

// Session is what the client keeps between invocations.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username,omitempty"`
}

// SessionStore persists the token pair.
type SessionStore interface {
	Load() (Session, error)
	Save(Session) error
	Clear() error
}

// FileSession stores the session as JSON in a file readable only by the
// owner.
type FileSession struct {
	path string
}

func NewFileSession(path string) *FileSession {
	return &FileSession{path: path}
}

// DefaultSessionPath is $XDG_CONFIG_HOME/expensectl/session.json, or the
// platform equivalent.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "expensectl", "session.json"), nil
}

func (f *FileSession) Path() string { return f.path }

func (f *FileSession) Load() (Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", f.path, err)
	}
	if s.AccessToken == "" && s.RefreshToken == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Save replaces the file atomically.
func (f *FileSession) Save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (f *FileSession) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// MemorySession keeps the session in memory.
type MemorySession struct {
	mu      sync.Mutex
	session Session
	ok      bool
}

func (m *MemorySession) Load() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ok {
		return Session{}, ErrNoSession
	}
	return m.session, nil
}

func (m *MemorySession) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session, m.ok = s, true
	return nil
}

func (m *MemorySession) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session, m.ok = Session{}, false
	return nil
}
