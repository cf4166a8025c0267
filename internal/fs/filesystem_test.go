package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOSFilesystemManager_Resolve(t *testing.T) {
	m := NewOSFilesystemManager()

	t.Run("resolves regular file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "file.txt")
		if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		p, err := m.Resolve(path)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsDir() {
			t.Error("IsDir() = true for regular file")
		}
		if p.Info().Size() != 5 {
			t.Errorf("Info().Size() = %d, want 5", p.Info().Size())
		}
	})

	t.Run("resolves directory", func(t *testing.T) {
		dir := t.TempDir()

		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !p.IsDir() {
			t.Error("IsDir() = false for directory")
		}
	})

	t.Run("rejects symlink", func(t *testing.T) {
		dir := t.TempDir()
		target := filepath.Join(dir, "target.txt")
		if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		link := filepath.Join(dir, "link.txt")
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks not supported here: %v", err)
		}

		if _, err := m.Resolve(link); err == nil {
			t.Error("Resolve() expected error for symlink, got nil")
		}
	})

	t.Run("rejects missing path", func(t *testing.T) {
		if _, err := m.Resolve(filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("Resolve() expected error for missing path, got nil")
		}
	})
}

func TestOSFilesystemManager_FindFiles(t *testing.T) {
	m := NewOSFilesystemManager()

	setup := func(t *testing.T) string {
		dir := t.TempDir()
		mustWrite := func(rel string, content []byte) {
			path := filepath.Join(dir, rel)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				t.Fatalf("MkdirAll() error = %v", err)
			}
			if err := os.WriteFile(path, content, 0644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
		}
		mustWrite("a.txt", []byte("a"))
		mustWrite("b.txt", []byte("b"))
		mustWrite("sub/c.txt", []byte("c"))
		return dir
	}

	t.Run("non-recursive lists top level only", func(t *testing.T) {
		dir := setup(t)
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		files, err := m.FindFiles(p, false)
		if err != nil {
			t.Fatalf("FindFiles() error = %v", err)
		}
		if len(files) != 2 {
			t.Errorf("len(files) = %d, want 2", len(files))
		}
	})

	t.Run("recursive descends into subdirectories", func(t *testing.T) {
		dir := setup(t)
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		files, err := m.FindFiles(p, true)
		if err != nil {
			t.Fatalf("FindFiles() error = %v", err)
		}
		if len(files) != 3 {
			t.Errorf("len(files) = %d, want 3", len(files))
		}
	})

	t.Run("rejects file path", func(t *testing.T) {
		dir := setup(t)
		p, err := m.Resolve(filepath.Join(dir, "a.txt"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		if _, err := m.FindFiles(p, false); err == nil {
			t.Error("FindFiles() expected error for file path, got nil")
		}
	})
}
