package receipt

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for page scratch storage
type Storage interface {
	// Save saves a file and returns the path/filename
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by path
	Get(path string) ([]byte, error)

	// Delete removes a file
	Delete(path string) error
}

// LocalStorage implements the Storage interface using local filesystem
type LocalStorage struct {
	basePath string
}

// NewScratchStorage creates a LocalStorage in a fresh temporary directory
// under dir (the OS temp dir when empty). RemoveAll releases it.
func NewScratchStorage(dir, pattern string) (*LocalStorage, error) {
	path, err := os.MkdirTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &LocalStorage{basePath: path}, nil
}

// Path returns the storage directory
func (l *LocalStorage) Path() string {
	return l.basePath
}

// Save saves a file to local storage
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	filename = filepath.Base(filename)
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(path string) ([]byte, error) {
	fullPath := filepath.Join(l.basePath, filepath.Base(path))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(path string) error {
	fullPath := filepath.Join(l.basePath, filepath.Base(path))
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// RemoveAll deletes the storage directory and everything in it
func (l *LocalStorage) RemoveAll() error {
	if err := os.RemoveAll(l.basePath); err != nil {
		return fmt.Errorf("removing storage directory: %w", err)
	}
	return nil
}
