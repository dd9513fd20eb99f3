// Package credstore owns the client's durable state: the access token, the
// refresh token and the cached user object. Clearing it is equivalent to
// logout. Tokens are opaque strings; nothing here inspects them.
package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Profile and User are the wire models cached alongside the tokens. They are
// defined here, at the bottom of the import graph, and re-exported by the api
// package as type aliases so both layers share one identical type.
type Profile struct {
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio"`
	FullName string `json:"full_name"`
}

type User struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Profile  Profile `json:"profile"`
}

// Store is the credential container contract. Implementations must keep the
// invariant that access and refresh tokens are both present or both absent.
type Store interface {
	SetSession(access, refresh string, user *User) error
	SetAccessToken(access string) error
	SetUser(user *User) error
	AccessToken() string
	RefreshToken() string
	User() *User
	Clear() error
}

type state struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    *User  `json:"user,omitempty"`
}

// MemStore keeps credentials in memory only. Used by tests and by embedders
// that handle persistence themselves.
type MemStore struct {
	mu sync.RWMutex
	s  state
}

func NewMemStore() *MemStore { return &MemStore{} }

func (m *MemStore) SetSession(access, refresh string, user *User) error {
	if access == "" || refresh == "" {
		return fmt.Errorf("credstore: both tokens required, got access=%t refresh=%t", access != "", refresh != "")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = state{Access: access, Refresh: refresh, User: user}
	return nil
}

func (m *MemStore) SetAccessToken(access string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Refresh == "" {
		return fmt.Errorf("credstore: no session to update")
	}
	m.s.Access = access
	return nil
}

func (m *MemStore) SetUser(user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.User = user
	return nil
}

func (m *MemStore) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Access
}

func (m *MemStore) RefreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.Refresh
}

func (m *MemStore) User() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.User
}

func (m *MemStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = state{}
	return nil
}

// FileStore persists credentials as a single JSON file, the CLI equivalent of
// the browser's three localStorage keys. Writes go through a temp file and
// rename so a crash never leaves a partial session on disk.
type FileStore struct {
	mu   sync.RWMutex
	path string
	s    state
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("credstore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &fs.s); err != nil {
		// Corrupt credential files are treated as logged out, not fatal.
		fs.s = state{}
	}
	if fs.s.Access == "" || fs.s.Refresh == "" {
		fs.s = state{}
	}
	return fs, nil
}

func (f *FileStore) SetSession(access, refresh string, user *User) error {
	if access == "" || refresh == "" {
		return fmt.Errorf("credstore: both tokens required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = state{Access: access, Refresh: refresh, User: user}
	return f.persist()
}

func (f *FileStore) SetAccessToken(access string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s.Refresh == "" {
		return fmt.Errorf("credstore: no session to update")
	}
	f.s.Access = access
	return f.persist()
}

func (f *FileStore) SetUser(user *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.User = user
	return f.persist()
}

func (f *FileStore) AccessToken() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.s.Access
}

func (f *FileStore) RefreshToken() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.s.Refresh
}

func (f *FileStore) User() *User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.s.User
}

// Clear drops all keys in one write; readers never observe a token without
// its pair.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s = state{}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credstore: clear %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("credstore: mkdir: %w", err)
	}
	b, err := json.MarshalIndent(&f.s, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: marshal: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("credstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("credstore: rename: %w", err)
	}
	return nil
}
