package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sentinel-go/internal/sentinel"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool

	// StatSize overrides the reported size when non-negative, so tests can
	// simulate truncated reads (content shorter than the stat says).
	StatSize int64

	// OpenErr makes Open fail for this file.
	OpenErr error
}

// MockFilesystemManager is an in-memory filesystem for testing.
type MockFilesystemManager struct {
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(path string, content []byte) *MockFile {
	f := &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Now(),
		StatSize:    -1,
	}
	m.files[path] = f
	return f
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.files[path] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Now(),
		IsDirectory: true,
		StatSize:    -1,
	}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*sentinel.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}

	return sentinel.NewPath(absPath, file.IsDirectory, m.fileInfo(absPath, file)), nil
}

func (m *MockFilesystemManager) Open(path *sentinel.Path) (io.ReadCloser, error) {
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	if file.OpenErr != nil {
		return nil, file.OpenErr
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(path *sentinel.Path) (fs.FileInfo, error) {
	file, ok := m.files[path.String()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", path.String())
	}
	return m.fileInfo(path.String(), file), nil
}

func (m *MockFilesystemManager) FindFiles(path *sentinel.Path, recursive bool) ([]*sentinel.Path, error) {
	root, ok := m.files[path.String()]
	if !ok || !root.IsDirectory {
		return nil, fmt.Errorf("not a directory: %s", path.String())
	}

	prefix := path.String() + "/"
	var names []string
	for p, f := range m.files {
		if f.IsDirectory || !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && strings.Contains(p[len(prefix):], "/") {
			continue
		}
		names = append(names, p)
	}
	sort.Strings(names)

	paths := make([]*sentinel.Path, 0, len(names))
	for _, p := range names {
		paths = append(paths, sentinel.NewPath(p, false, m.fileInfo(p, m.files[p])))
	}
	return paths, nil
}

func (m *MockFilesystemManager) fileInfo(path string, file *MockFile) *mockFileInfo {
	size := int64(len(file.Content))
	if file.StatSize >= 0 {
		size = file.StatSize
	}
	return &mockFileInfo{
		name:    filepath.Base(path),
		size:    size,
		mode:    file.Permissions,
		modTime: file.ModTime,
		isDir:   file.IsDirectory,
	}
}

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ sentinel.FilesystemManager = (*MockFilesystemManager)(nil)
