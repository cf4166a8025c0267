package signature

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestIndex_Load(t *testing.T) {
	t.Run("parses well-formed lines", func(t *testing.T) {
		idx := NewIndex()
		src := strings.Join([]string{
			"d41d8cd98f00b204e9800998ecf8427e:0:Empty.Test",
			"5d41402abc4b2a76b9719d911017c592:5:EICAR.Variant",
		}, "\n")

		if err := idx.Load(strings.NewReader(src)); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if idx.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", idx.Len())
		}

		label, ok := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 0)
		if !ok || label != "Empty.Test" {
			t.Errorf("Lookup() = (%q, %v), want (Empty.Test, true)", label, ok)
		}
	})

	t.Run("lowercases digests on ingestion", func(t *testing.T) {
		idx := NewIndex()
		src := "D41D8CD98F00B204E9800998ECF8427E:0:Upper.Case"

		if err := idx.Load(strings.NewReader(src)); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		label, ok := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 0)
		if !ok || label != "Upper.Case" {
			t.Errorf("Lookup() = (%q, %v), want (Upper.Case, true)", label, ok)
		}
	})

	t.Run("keeps colons inside the label", func(t *testing.T) {
		idx := NewIndex()
		src := "d41d8cd98f00b204e9800998ecf8427e:0:Trojan:Win32/Agent"

		if err := idx.Load(strings.NewReader(src)); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		label, _ := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 0)
		if label != "Trojan:Win32/Agent" {
			t.Errorf("label = %q, want %q", label, "Trojan:Win32/Agent")
		}
	})

	t.Run("skips malformed lines silently", func(t *testing.T) {
		idx := NewIndex()
		src := strings.Join([]string{
			"",
			"# comment",
			"not-a-signature",
			"zzzz8cd98f00b204e9800998ecf8427e:0:Bad.Hex",
			"d41d8cd98f00b204e9800998ecf8427e:-5:Negative.Size",
			"d41d8cd98f00b204e9800998ecf8427e:abc:Bad.Size",
			"d41d8cd98f00b204e9800998ecf8427e:0:",
			"d41d8cd98f00b204e9800998ecf8427e:0:Good.One",
		}, "\n")

		if err := idx.Load(strings.NewReader(src)); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if idx.Len() != 1 {
			t.Errorf("Len() = %d, want 1", idx.Len())
		}
		// Blank lines and comments don't count as skipped garbage is fine
		// either way; what matters is the well-formed line survived.
		if idx.Skipped() == 0 {
			t.Errorf("Skipped() = 0, want > 0")
		}
	})

	t.Run("last write wins on duplicate keys", func(t *testing.T) {
		idx := NewIndex()
		src := strings.Join([]string{
			"d41d8cd98f00b204e9800998ecf8427e:0:First.Label",
			"d41d8cd98f00b204e9800998ecf8427e:0:Second.Label",
		}, "\n")

		if err := idx.Load(strings.NewReader(src)); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		label, _ := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 0)
		if label != "Second.Label" {
			t.Errorf("label = %q, want Second.Label", label)
		}
	})

	t.Run("second load is a no-op", func(t *testing.T) {
		idx := NewIndex()
		if err := idx.Load(strings.NewReader("d41d8cd98f00b204e9800998ecf8427e:0:One")); err != nil {
			t.Fatalf("first Load() error = %v", err)
		}
		if err := idx.Load(strings.NewReader("5d41402abc4b2a76b9719d911017c592:5:Two")); err != nil {
			t.Fatalf("second Load() error = %v", err)
		}

		if idx.Len() != 1 {
			t.Errorf("Len() after second load = %d, want 1", idx.Len())
		}
		if _, ok := idx.Lookup("5d41402abc4b2a76b9719d911017c592", 5); ok {
			t.Error("second load should not have been applied")
		}
	})

	t.Run("size is part of the key", func(t *testing.T) {
		idx := NewIndex()
		if err := idx.Load(strings.NewReader("d41d8cd98f00b204e9800998ecf8427e:10:Sized")); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if _, ok := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 11); ok {
			t.Error("Lookup with wrong size should miss")
		}
	})
}

func TestIndex_LoadFile(t *testing.T) {
	t.Run("missing file is non-fatal", func(t *testing.T) {
		idx := NewIndex()
		err := idx.LoadFile(filepath.Join(t.TempDir(), "missing.db"))
		if err == nil {
			t.Fatal("LoadFile() on missing file should return an error")
		}

		// Index stays usable and empty.
		if _, ok := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 0); ok {
			t.Error("Lookup on empty index should miss")
		}
		if idx.Loaded() {
			t.Error("Loaded() = true after failed open, want false (retry allowed)")
		}
	})

	t.Run("loads from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "signatures.db")
		content := "d41d8cd98f00b204e9800998ecf8427e:0:Disk.Test\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		idx := NewIndex()
		if err := idx.LoadFile(path); err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if label, _ := idx.Lookup("d41d8cd98f00b204e9800998ecf8427e", 0); label != "Disk.Test" {
			t.Errorf("label = %q, want Disk.Test", label)
		}
	})
}

func TestIndex_ConcurrentLoad(t *testing.T) {
	// Multiple goroutines racing Load must be safe; exactly one wins.
	idx := NewIndex()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = idx.Load(strings.NewReader("d41d8cd98f00b204e9800998ecf8427e:0:Race"))
		}()
	}
	wg.Wait()

	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}
