// Package storage provides file-based JSON storage for deskpilot state:
// persisted backend sessions, chat history and notes.
//
// Records are addressed by path segments; ["history", "1"] maps to
// <base>/history/1.json. Writes are atomic (temp file + rename) and
// serialized per file with an flock.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidPath = errors.New("invalid storage path")
)

// Storage provides file-based JSON storage.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New creates a new Storage instance rooted at basePath.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// BasePath returns the storage root.
func (s *Storage) BasePath() string {
	return s.basePath
}

func validPath(path []string) error {
	for _, p := range path {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidPath, strings.Join(path, "/"))
		}
	}
	return nil
}

func (s *Storage) pathToFile(path []string) string {
	return s.pathToDir(path) + ".json"
}

func (s *Storage) pathToDir(path []string) string {
	return filepath.Join(append([]string{s.basePath}, path...)...)
}

// Get retrieves a value from storage.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	if err := validPath(path); err != nil {
		return err
	}
	return s.read(s.pathToFile(path), v)
}

func (s *Storage) read(filePath string, v any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}
	return nil
}

// Put stores a value in storage.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	if err := validPath(path); err != nil {
		return err
	}
	filePath := s.pathToFile(path)
	return s.withLock(filePath, func() error {
		return s.write(filePath, v)
	})
}

// Update reads the value at path into v (leaving v untouched if the record
// does not exist), calls fn, and writes v back, all under the file lock.
// Returning an error from fn aborts the write.
func (s *Storage) Update(ctx context.Context, path []string, v any, fn func() error) error {
	if err := validPath(path); err != nil {
		return err
	}
	filePath := s.pathToFile(path)
	return s.withLock(filePath, func() error {
		if err := s.read(filePath, v); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		return s.write(filePath, v)
	})
}

func (s *Storage) write(filePath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Delete removes a value from storage. Deleting a missing record is not an error.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	if err := validPath(path); err != nil {
		return err
	}
	filePath := s.pathToFile(path)
	return s.withLock(filePath, func() error {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		return nil
	})
}

// RemoveAll deletes the record at path and every record below it.
func (s *Storage) RemoveAll(ctx context.Context, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: refusing to remove storage root", ErrInvalidPath)
	}
	if err := validPath(path); err != nil {
		return err
	}
	if err := os.RemoveAll(s.pathToDir(path)); err != nil {
		return fmt.Errorf("failed to remove directory: %w", err)
	}
	if err := os.Remove(s.pathToFile(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the names of records and sub-directories at a path.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	if err := validPath(path); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	items := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	return items, nil
}

// Scan iterates over all records at a path.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	if err := validPath(path); err != nil {
		return err
	}
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// Exists checks if a record exists.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	if validPath(path) != nil {
		return false
	}
	_, err := os.Stat(s.pathToFile(path))
	return err == nil
}

func (s *Storage) withLock(filePath string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	return fn()
}

func (s *Storage) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
