package sentinel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sentinel-go/internal/model"
)

// copyChunkSize bounds the streaming-copy fallback to one buffer's worth of
// memory regardless of file size.
const copyChunkSize = 64 * 1024

// Manager owns the quarantine directory and reconciles the logical index
// against the physical files in it. Quarantine copies (never moves) the
// source in, Restore moves it back out, Delete tolerates index/filesystem
// drift accumulated across container relocations and stored-name format
// changes.
//
// Only the stored name relative to the quarantine directory is persisted;
// the directory's absolute location is not stable across app reinstalls, so
// absolute paths are reconstructed on demand from the current location.
type Manager struct {
	store          Store
	fsmgr          FilesystemManager
	encryptor      Encryptor // nil disables at-rest encryption
	logger         Logger
	idgen          IDGenerator
	quarantineDir  string
	restoreEnabled bool

	// active guards at-most-one mutation per record id. A second concurrent
	// restore/delete observes ErrConflict (or ErrNotFound once the first
	// completes), never a double free of the same file.
	mu     sync.Mutex
	active map[string]struct{}
}

// NewManager creates a quarantine manager rooted at quarantineDir.
// The directory is created on first use. encryptor may be nil.
// restoreEnabled reflects whether this installation permits writing files
// back to arbitrary original locations; when false, Restore reports
// ErrRestoreUnsupported and callers should offer export instead.
func NewManager(store Store, fsmgr FilesystemManager, encryptor Encryptor, logger Logger, idgen IDGenerator, quarantineDir string, restoreEnabled bool) *Manager {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Manager{
		store:          store,
		fsmgr:          fsmgr,
		encryptor:      encryptor,
		logger:         logger,
		idgen:          idgen,
		quarantineDir:  quarantineDir,
		restoreEnabled: restoreEnabled,
		active:         make(map[string]struct{}),
	}
}

// QuarantineDir returns the directory holding quarantined copies.
func (m *Manager) QuarantineDir() string { return m.quarantineDir }

// Quarantine isolates the file at sourcePath: copies it into the quarantine
// directory under a collision-proof name ("<uuid>__<basename>") and records
// it in the index. The source file itself is left in place.
//
// If anything fails before the record is inserted, no record is left behind
// and the partial copy is removed best-effort.
func (m *Manager) Quarantine(ctx context.Context, sourcePath, classification, reason string) (*model.QuarantineRecord, error) {
	p, err := m.fsmgr.Resolve(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	if p.IsDir() {
		return nil, fmt.Errorf("%w: path is a directory: %s", ErrSourceUnreadable, sourcePath)
	}

	if err := os.MkdirAll(m.quarantineDir, 0700); err != nil {
		return nil, fmt.Errorf("creating quarantine directory: %w", err)
	}

	// A fresh UUID prefix makes the destination unique even when two files
	// of the same name are quarantined at different times.
	storedName := m.idgen.New() + "__" + filepath.Base(p.String())
	destPath := filepath.Join(m.quarantineDir, storedName)

	encrypted, err := m.copyIn(ctx, p, destPath)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.Insert(InsertParams{
		FileName:       filepath.Base(p.String()),
		StoredName:     storedName,
		OriginalPath:   p.String(),
		Classification: classification,
		Reason:         reason,
		Encrypted:      encrypted,
	})
	if err != nil {
		os.Remove(destPath)
		return nil, fmt.Errorf("%w: recording quarantine: %v", ErrPersistence, err)
	}

	m.logger.Info("file quarantined",
		"id", rec.ID, "source", p.String(), "classification", classification, "reason", reason)
	return rec, nil
}

// copyIn writes the source into destPath using an atomic temp-file-and-
// rename. It tries a direct copy first; if that fails (provider-backed
// sources can refuse it mid-stream), it reopens the source and falls back
// to a chunked streaming copy that is interruptible between chunks and
// bounded to one buffer of memory.
func (m *Manager) copyIn(ctx context.Context, p *Path, destPath string) (bool, error) {
	encrypt := m.encryptor != nil && m.encryptor.IsConfigured()

	src, err := m.fsmgr.Open(p)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	directErr := m.writeDest(destPath, func(w io.Writer) error {
		if encrypt {
			return m.encryptor.Encrypt(src, w)
		}
		_, err := io.Copy(w, src)
		return err
	})
	src.Close()
	if directErr == nil {
		return encrypt, nil
	}

	src2, err := m.fsmgr.Open(p)
	if err != nil {
		return false, fmt.Errorf("%w: direct copy failed (%v), source could not be reopened: %v", ErrCopyFailed, directErr, err)
	}
	defer src2.Close()

	chunkErr := m.writeDest(destPath, func(w io.Writer) error {
		if encrypt {
			// The encryptor streams internally; the context-aware reader
			// keeps the fallback interruptible between its reads.
			return m.encryptor.Encrypt(&ctxReader{ctx: ctx, r: src2}, w)
		}
		return copyChunked(ctx, w, src2)
	})
	if chunkErr != nil {
		return false, fmt.Errorf("%w: direct: %v; streaming: %v", ErrCopyFailed, directErr, chunkErr)
	}
	return encrypt, nil
}

// writeDest writes via a temp file in the same directory and renames into
// place, so a partially written destination is never observable.
func (m *Manager) writeDest(destPath string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".sentinel-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Restore moves the quarantined copy for id back to its recorded original
// path and deletes the record. A missing parent directory is recreated; an
// existing file at the destination is never overwritten; the restored file
// gets a disambiguating suffix instead. decrypt is required when the copy
// is encrypted at rest; pass nil otherwise.
//
// Returns the path the file was restored to.
func (m *Manager) Restore(ctx context.Context, id string, decrypt DecryptionContext) (string, error) {
	if !m.restoreEnabled {
		return "", ErrRestoreUnsupported
	}

	if err := m.acquire(id); err != nil {
		return "", err
	}
	defer m.release(id)

	rec, err := m.store.GetByID(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil {
		return "", fmt.Errorf("%w: record %s", ErrNotFound, id)
	}

	src, ok := m.locateStored(rec)
	if !ok {
		return "", fmt.Errorf("%w: quarantined copy for record %s is missing", ErrNotFound, id)
	}
	if rec.OriginalPath == "" {
		return "", fmt.Errorf("record %s has no original path to restore to", id)
	}

	dest := rec.OriginalPath
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("recreating original directory: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		dest = disambiguate(dest, rec.ID)
	}

	if rec.Encrypted {
		if decrypt == nil {
			return "", fmt.Errorf("quarantined copy is encrypted: unlock the key first")
		}
		if err := m.decryptTo(src, dest, decrypt); err != nil {
			return "", err
		}
		os.Remove(src)
	} else {
		if err := os.Rename(src, dest); err != nil {
			// Rename fails across filesystems; stream the copy instead.
			if err := copyFile(ctx, src, dest); err != nil {
				return "", fmt.Errorf("restoring file: %w", err)
			}
			os.Remove(src)
		}
	}

	if err := m.store.Delete(id); err != nil {
		return dest, fmt.Errorf("%w: removing restored record: %v", ErrPersistence, err)
	}

	m.logger.Info("file restored", "id", id, "path", dest)
	return dest, nil
}

// Delete removes the quarantined copy for id and its record, tolerating
// index/filesystem drift:
//
//  1. The stored value is resolved to a candidate path under the current
//     quarantine directory.
//  2. If the candidate is verifiably inside the quarantine directory, the
//     file is deleted if present and the record is always removed; a
//     missing file is not an error here, the goal is index consistency.
//  3. If the candidate points outside (a stale absolute path from a
//     previous app container), the directory's actual contents are searched
//     with progressively looser name normalization; the first match is
//     deleted along with the record.
//  4. With no match by any strategy the record is deliberately kept:
//     dropping the index entry without a confirmed deletion would silently
//     lose track of a file that might still exist somewhere recoverable.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.acquire(id); err != nil {
		return err
	}
	defer m.release(id)

	rec, err := m.store.GetByID(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil {
		return fmt.Errorf("%w: record %s", ErrNotFound, id)
	}

	candidate := m.storedCandidate(rec.StoredName)
	if m.insideQuarantine(candidate) {
		if err := os.Remove(candidate); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing quarantined file: %w", err)
		}
		if err := m.store.Delete(id); err != nil {
			return fmt.Errorf("%w: removing record: %v", ErrPersistence, err)
		}
		m.logger.Info("quarantined file deleted", "id", id, "stored_name", rec.StoredName)
		return nil
	}

	entries, err := m.readQuarantineDir()
	if err != nil {
		return err
	}
	name, ok := findTolerantMatch(entries, filepath.Base(rec.StoredName))
	if !ok {
		return fmt.Errorf("%w: no quarantine file matches %q", ErrNotFound, rec.StoredName)
	}
	if err := os.Remove(filepath.Join(m.quarantineDir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing quarantined file: %w", err)
	}
	if err := m.store.Delete(id); err != nil {
		return fmt.Errorf("%w: removing record: %v", ErrPersistence, err)
	}

	m.logger.Info("quarantined file deleted via tolerant match",
		"id", id, "stored_name", rec.StoredName, "matched", name)
	return nil
}

// List returns all quarantine records whose files can still be located,
// purging orphaned records (copy gone, no tolerant match) along the way.
// Records currently under mutation are left alone.
func (m *Manager) List() ([]*model.QuarantineRecord, error) {
	recs, err := m.store.GetAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	kept := recs[:0]
	for _, rec := range recs {
		if _, ok := m.locateStored(rec); ok {
			kept = append(kept, rec)
			continue
		}
		if err := m.acquire(rec.ID); err != nil {
			kept = append(kept, rec)
			continue
		}
		err = m.store.Delete(rec.ID)
		m.release(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: purging orphaned record: %v", ErrPersistence, err)
		}
		m.logger.Warn("purged orphaned quarantine record", "id", rec.ID, "stored_name", rec.StoredName)
	}
	return kept, nil
}

// Export streams the plaintext of a quarantined file to the exporter and
// returns the destination location. The copy and its record stay in
// quarantine; export is the read-only escape hatch for installations where
// restore is unsupported.
func (m *Manager) Export(ctx context.Context, id string, exporter Exporter, decrypt DecryptionContext) (string, error) {
	if exporter == nil {
		return "", fmt.Errorf("no export destination configured")
	}

	rec, err := m.store.GetByID(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil {
		return "", fmt.Errorf("%w: record %s", ErrNotFound, id)
	}

	src, ok := m.locateStored(rec)
	if !ok {
		return "", fmt.Errorf("%w: quarantined copy for record %s is missing", ErrNotFound, id)
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	var r io.Reader = &ctxReader{ctx: ctx, r: f}
	size := info.Size()
	if rec.Encrypted {
		if decrypt == nil {
			return "", fmt.Errorf("quarantined copy is encrypted: unlock the key first")
		}
		// Pipe ciphertext straight into the decryptor; the plaintext size
		// is unknown up front.
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(decrypt.Decrypt(f, pw))
		}()
		r = pr
		size = -1
	}

	loc, err := exporter.Export(ctx, rec.FileName, r, size)
	if err != nil {
		return "", fmt.Errorf("exporting %s: %w", rec.FileName, err)
	}

	m.logger.Info("quarantined file exported", "id", id, "destination", loc)
	return loc, nil
}

// MigrateLegacyRecords is a one-time, idempotent pass that rewrites legacy
// absolute-path stored references to the relative form, but only when a
// file of exactly that base name exists in the current quarantine
// directory. Records that cannot be confidently matched are left untouched,
// never guessed. Returns the number of records migrated.
func (m *Manager) MigrateLegacyRecords() (int, error) {
	recs, err := m.store.GetAll()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	entries, err := m.readQuarantineDir()
	if err != nil {
		return 0, err
	}

	present := make(map[string]struct{}, len(entries))
	for _, name := range entries {
		present[name] = struct{}{}
	}

	migrated := 0
	for _, rec := range recs {
		if !filepath.IsAbs(rec.StoredName) {
			continue
		}
		base := filepath.Base(rec.StoredName)
		if _, ok := present[base]; !ok {
			continue
		}
		if err := m.store.UpdateStoredName(rec.ID, base); err != nil {
			return migrated, fmt.Errorf("%w: migrating record %s: %v", ErrPersistence, rec.ID, err)
		}
		m.logger.Info("migrated legacy stored name", "id", rec.ID, "stored_name", base)
		migrated++
	}
	return migrated, nil
}

// storedCandidate resolves a record's stored value to a candidate absolute
// path. Relative names (the canonical format) resolve under the current
// quarantine directory; legacy absolute paths are taken as-is and fail the
// containment check when they refer to a previous container.
func (m *Manager) storedCandidate(stored string) string {
	if filepath.IsAbs(stored) {
		return filepath.Clean(stored)
	}
	return filepath.Join(m.quarantineDir, stored)
}

// insideQuarantine reports whether candidate, after resolving symlinks,
// lies inside the current quarantine directory.
func (m *Manager) insideQuarantine(candidate string) bool {
	dir := filepath.Clean(m.quarantineDir)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	cand := filepath.Clean(candidate)
	if resolvedParent, err := filepath.EvalSymlinks(filepath.Dir(cand)); err == nil {
		cand = filepath.Join(resolvedParent, filepath.Base(cand))
	}

	rel, err := filepath.Rel(dir, cand)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// locateStored finds the on-disk path for a record's copy: the contained
// candidate if it exists, otherwise the first tolerant directory match.
func (m *Manager) locateStored(rec *model.QuarantineRecord) (string, bool) {
	candidate := m.storedCandidate(rec.StoredName)
	if m.insideQuarantine(candidate) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}

	entries, err := m.readQuarantineDir()
	if err != nil {
		return "", false
	}
	if name, ok := findTolerantMatch(entries, filepath.Base(rec.StoredName)); ok {
		return filepath.Join(m.quarantineDir, name), true
	}
	return "", false
}

// readQuarantineDir lists file names in the quarantine directory.
// A missing directory reads as empty.
func (m *Manager) readQuarantineDir() ([]string, error) {
	dirents, err := os.ReadDir(m.quarantineDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing quarantine directory: %w", err)
	}
	names := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if !d.IsDir() {
			names = append(names, d.Name())
		}
	}
	return names, nil
}

func (m *Manager) decryptTo(src, dest string, decrypt DecryptionContext) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening quarantined copy: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating restored file: %w", err)
	}

	if err := decrypt.Decrypt(in, out); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("decrypting quarantined copy: %w", err)
	}
	return out.Close()
}

func (m *Manager) acquire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[id]; busy {
		return fmt.Errorf("%w: %s", ErrConflict, id)
	}
	m.active[id] = struct{}{}
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// disambiguate returns a non-colliding restore destination:
// "<name>.<id[:8]>.restored" alongside the original.
func disambiguate(dest, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return dest + "." + short + ".restored"
}

// copyChunked pumps src to dst through a fixed 64 KiB buffer, checking for
// cancellation between chunks.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// copyFile streams src to dest for restores that cross filesystems.
func copyFile(ctx context.Context, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := copyChunked(ctx, out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// ctxReader makes any reader cancellable between reads.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
