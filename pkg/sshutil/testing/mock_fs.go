// Package testing provides SSH mock utilities for testing.
// It simulates a remote machine with an in-memory filesystem and an
// in-process SSH/SFTP server.
package testing

import (
	"io/fs"
	"path"
	"strings"
	"sync"
)

// MockFS simulates an in-memory remote filesystem.
// Paths are slash-separated like on the remote side. "/" and "." always exist.
type MockFS struct {
	mu    sync.RWMutex
	files map[string][]byte   // path -> content
	dirs  map[string]struct{} // directories
}

// NewMockFS creates a new empty mock filesystem.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string][]byte),
		dirs:  map[string]struct{}{"/": {}, ".": {}},
	}
}

// MkdirAll creates a directory and all parent directories.
func (m *MockFS) MkdirAll(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir = path.Clean(dir)
	for dir != "/" && dir != "." {
		if _, isFile := m.files[dir]; isFile {
			return &fs.PathError{Op: "mkdir", Path: dir, Err: fs.ErrExist}
		}
		m.dirs[dir] = struct{}{}
		dir = path.Dir(dir)
	}
	return nil
}

// WriteFile creates or truncates a file. Like SFTP, it does not create the
// parent directory.
func (m *MockFS) WriteFile(name string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = path.Clean(name)
	if _, isDir := m.dirs[name]; isDir {
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if _, ok := m.dirs[path.Dir(name)]; !ok {
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	m.files[name] = append([]byte(nil), content...)
	return nil
}

// ReadFile reads the content of a file.
func (m *MockFS) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = path.Clean(name)
	content, exists := m.files[name]
	if !exists {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), content...), nil
}

// Remove removes a file or directory and all its contents.
func (m *MockFS) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = path.Clean(name)
	delete(m.files, name)
	delete(m.dirs, name)

	prefix := name + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			delete(m.files, p)
		}
	}
	for p := range m.dirs {
		if strings.HasPrefix(p, prefix) {
			delete(m.dirs, p)
		}
	}
	return nil
}

// IsDir returns true if the path exists and is a directory.
func (m *MockFS) IsDir(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.dirs[path.Clean(name)]
	return exists
}

// IsFile returns true if the path exists and is a file.
func (m *MockFS) IsFile(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.files[path.Clean(name)]
	return exists
}
