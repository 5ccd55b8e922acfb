package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/personal-pl/plctl/internal/model"
)

// State is the persisted session: the bearer token plus a cached profile.
type State struct {
	Token   string      `json:"token"`
	User    *model.User `json:"user,omitempty"`
	SavedAt time.Time   `json:"saved_at"`
}

// Store persists session state between runs.
type Store interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// FileStore keeps the session in a JSON file readable only by the owner.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (f *FileStore) Path() string { return f.path }

// Load returns the zero State when the file does not exist.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading session: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parsing session %s: %w", f.path, err)
	}
	return st, nil
}

// Save writes the state atomically.
func (f *FileStore) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing session: %w", err)
	}
	return nil
}

// Clear removes the file; a missing file is not an error.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// MemoryStore keeps the session in memory.
type MemoryStore struct {
	mu sync.Mutex
	st State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st, nil
}

func (m *MemoryStore) Save(st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = State{}
	return nil
}
