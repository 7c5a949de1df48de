package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/domain"
)

// FileStateStore persists the chat state as a JSON file on local disk
type FileStateStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStateStore creates a store writing to path
func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

// Path returns the state file location
func (s *FileStateStore) Path() string {
	return s.path
}

// Load reads the state file
func (s *FileStateStore) Load(ctx context.Context) (*domain.ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &chat.StoreError{Op: "load", Key: s.path, Err: err}
	}

	state, err := chat.DecodeState(data)
	if err != nil {
		return nil, &chat.StoreError{Op: "load", Key: s.path, Err: err}
	}
	return state, nil
}

// Save replaces the state file atomically
func (s *FileStateStore) Save(ctx context.Context, state *domain.ChatState) error {
	data, err := chat.EncodeState(state)
	if err != nil {
		return &chat.StoreError{Op: "save", Key: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return &chat.StoreError{Op: "save", Key: s.path, Err: err}
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over path, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	ok = true
	return nil
}
