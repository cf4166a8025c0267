package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sentinel-go/internal/sentinel"
)

// FileSystemExporter writes exported files into a directory on the local
// filesystem. Within the destination a second export of the same file name
// never overwrites the first.
type FileSystemExporter struct {
	name string
	dir  string
}

var _ sentinel.Exporter = (*FileSystemExporter)(nil)

// NewFileSystemExporter creates an exporter rooted at dir. The directory is
// created if it does not exist.
func NewFileSystemExporter(name, dir string) (*FileSystemExporter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &FileSystemExporter{name: name, dir: dir}, nil
}

// Export writes r to a file named after the original file, returning the
// destination path. size >= 0 is verified against the bytes written; pass
// -1 when the plaintext size is unknown.
func (e *FileSystemExporter) Export(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	destPath := filepath.Join(e.dir, filepath.Base(name))
	if _, err := os.Stat(destPath); err == nil {
		destPath = nextFreePath(destPath)
	}

	tmpFile, err := os.CreateTemp(e.dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if size >= 0 && written != size {
		return "", fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return destPath, nil
}

// nextFreePath finds an unused "<path>.N" variant.
func nextFreePath(path string) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
