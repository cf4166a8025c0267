package export

import (
	"context"
	"fmt"
	"io"
	"sync"

	"sentinel-go/internal/sentinel"
)

// MemoryExporter is an in-memory implementation of the Exporter interface,
// useful for testing. Safe for concurrent use.
type MemoryExporter struct {
	name  string
	mu    sync.RWMutex
	files map[string][]byte // file name -> content
}

var _ sentinel.Exporter = (*MemoryExporter)(nil)

// NewMemoryExporter creates a new in-memory exporter with the given name.
func NewMemoryExporter(name string) *MemoryExporter {
	return &MemoryExporter{
		name:  name,
		files: make(map[string][]byte),
	}
}

// Export stores the content in memory under the file name and returns a
// "memory://<exporter>/<name>" location.
func (e *MemoryExporter) Export(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[name] = data
	return "memory://" + e.name + "/" + name, nil
}

// Get returns the stored content for a file name.
func (e *MemoryExporter) Get(name string) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	data, ok := e.files[name]
	return data, ok
}

// Len returns the number of exported files.
func (e *MemoryExporter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.files)
}
