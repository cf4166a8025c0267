package sentinel_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"sentinel-go/internal/sentinel"
	"sentinel-go/internal/signature"
	"sentinel-go/internal/testutil"
)

type sessionFixture struct {
	store sentinel.Store
	fsm   *testutil.MockFilesystemManager
	sess  *sentinel.Session
}

func newSessionFixture(t *testing.T, idx *signature.Index) *sessionFixture {
	t.Helper()
	if idx == nil {
		idx = signature.NewIndex()
	}
	store := testutil.NewTestStore(t)
	fsm := testutil.NewMockFilesystemManager()
	qdir := filepath.Join(t.TempDir(), "quarantine")
	mgr := sentinel.NewManager(store, fsm, nil, nil, testutil.NewStubIDGenerator(), qdir, true)
	engine := sentinel.NewEngine(idx, nil, nil)
	return &sessionFixture{
		store: store,
		fsm:   fsm,
		sess:  sentinel.NewSession(engine, mgr, fsm, nil),
	}
}

func (f *sessionFixture) resolve(t *testing.T, path string) *sentinel.Path {
	t.Helper()
	p, err := f.fsm.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(%q) error = %v", path, err)
	}
	return p
}

func TestSession_Run(t *testing.T) {
	t.Run("scans directory and quarantines hits", func(t *testing.T) {
		f := newSessionFixture(t, nil)
		f.fsm.AddDirectory("/scan")
		f.fsm.AddFile("/scan/notes.txt", []byte("meeting at noon"))
		f.fsm.AddFile("/scan/keylogger.exe", []byte("payload"))

		sum, err := f.sess.Run(context.Background(), f.resolve(t, "/scan"), false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if sum.Scanned != 2 {
			t.Errorf("Scanned = %d, want 2", sum.Scanned)
		}
		if sum.Infected != 1 {
			t.Errorf("Infected = %d, want 1", sum.Infected)
		}
		if sum.Errors != 0 {
			t.Errorf("Errors = %d, want 0", sum.Errors)
		}

		recs, err := f.store.GetAll()
		if err != nil {
			t.Fatalf("GetAll() error = %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("store has %d records, want 1", len(recs))
		}
		if recs[0].FileName != "keylogger.exe" {
			t.Errorf("quarantined FileName = %q, want %q", recs[0].FileName, "keylogger.exe")
		}
	})

	t.Run("recursive scan descends into subdirectories", func(t *testing.T) {
		f := newSessionFixture(t, nil)
		f.fsm.AddDirectory("/scan")
		f.fsm.AddFile("/scan/top.txt", []byte("clean"))
		f.fsm.AddFile("/scan/sub/nested.txt", []byte("also clean"))

		sum, err := f.sess.Run(context.Background(), f.resolve(t, "/scan"), true)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Scanned != 2 {
			t.Errorf("Scanned = %d, want 2", sum.Scanned)
		}
	})

	t.Run("scans a single file root", func(t *testing.T) {
		content := []byte("flagged by hash")
		d := sentinel.NewDigest(content)
		idx := signature.NewIndex()
		line := fmt.Sprintf("%s:%d:Test.Sig", d.MD5, d.Size)
		if err := idx.Load(strings.NewReader(line)); err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		f := newSessionFixture(t, idx)
		f.fsm.AddFile("/scan/sample.bin", content)

		sum, err := f.sess.Run(context.Background(), f.resolve(t, "/scan/sample.bin"), false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Scanned != 1 || sum.Infected != 1 {
			t.Errorf("Summary = %+v, want 1 scanned, 1 infected", sum)
		}
	})

	t.Run("per-file errors do not abort the run", func(t *testing.T) {
		f := newSessionFixture(t, nil)
		f.fsm.AddDirectory("/scan")
		broken := f.fsm.AddFile("/scan/broken.bin", []byte("unreachable"))
		broken.OpenErr = errors.New("permission denied")
		f.fsm.AddFile("/scan/keylogger.exe", []byte("payload"))

		sum, err := f.sess.Run(context.Background(), f.resolve(t, "/scan"), false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if sum.Scanned != 2 {
			t.Errorf("Scanned = %d, want 2 (failed file still counts)", sum.Scanned)
		}
		if sum.Errors != 1 {
			t.Errorf("Errors = %d, want 1", sum.Errors)
		}
		if sum.Infected != 1 {
			t.Errorf("Infected = %d, want 1", sum.Infected)
		}
	})

	t.Run("truncated read is a per-file error", func(t *testing.T) {
		f := newSessionFixture(t, nil)
		f.fsm.AddDirectory("/scan")
		short := f.fsm.AddFile("/scan/short.bin", []byte("only part"))
		short.StatSize = 4096

		sum, err := f.sess.Run(context.Background(), f.resolve(t, "/scan"), false)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if sum.Scanned != 1 || sum.Errors != 1 || sum.Infected != 0 {
			t.Errorf("Summary = %+v, want 1 scanned, 1 error, 0 infected", sum)
		}
	})

	t.Run("cancellation stops before the next file", func(t *testing.T) {
		f := newSessionFixture(t, nil)
		f.fsm.AddDirectory("/scan")
		f.fsm.AddFile("/scan/a.txt", []byte("a"))
		f.fsm.AddFile("/scan/b.txt", []byte("b"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		sum, err := f.sess.Run(ctx, f.resolve(t, "/scan"), false)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
		if sum.Scanned != 0 {
			t.Errorf("Scanned = %d, want 0 after pre-cancelled context", sum.Scanned)
		}
	})
}
