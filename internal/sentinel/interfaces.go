package sentinel

import (
	"context"
	"io"
	"io/fs"
	"time"

	"sentinel-go/internal/model"
)

// Store provides the durable quarantine index and scan-operation history.
// Persistence failures are surfaced to the caller, never swallowed: losing
// a record silently would break the restore/delete guarantees.
type Store interface {
	// Insert creates and persists a new quarantine record with a fresh UUID
	// and the current timestamp.
	Insert(params InsertParams) (*model.QuarantineRecord, error)

	// GetAll returns every record. Order is stable within a session
	// (newest first); UI layers sort independently.
	GetAll() ([]*model.QuarantineRecord, error)

	// GetByID returns a record, or nil if no record has that id.
	GetByID(id string) (*model.QuarantineRecord, error)

	// Delete removes a record. Deleting a non-existent id is a no-op.
	Delete(id string) error

	// UpdateStoredName rewrites a record's stored-name reference.
	// Used only by the one-time legacy migration pass.
	UpdateStoredName(id string, storedName string) error

	// Scan-operation history.

	// CreateScanOperation records the start of a scan session.
	CreateScanOperation(operation string, parameters string) (*model.ScanOperation, error)

	// FinishScanOperation records the end of a scan session with its
	// final status and counters.
	FinishScanOperation(id int64, status string, scanned, infected, errs int64) error

	// ListScanOperations returns the most recent operations, newest first.
	ListScanOperations(limit int) ([]*model.ScanOperation, error)

	// BackupTo writes a consistent snapshot of the store to destPath.
	BackupTo(destPath string) error

	// Close closes the underlying store.
	Close() error
}

// InsertParams carries the fields of a new quarantine record. The id and
// timestamp are assigned by the store.
type InsertParams struct {
	FileName       string
	StoredName     string
	OriginalPath   string
	Classification string
	Reason         string
	Encrypted      bool
}

// FilesystemManager abstracts read-side file access so the scan pipeline
// can be tested without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	// Unlike path.Info() which returns cached info from when the path was
	// resolved, this always fetches current info from the filesystem.
	Stat(path *Path) (fs.FileInfo, error)

	// FindFiles discovers regular files under the given directory path.
	FindFiles(path *Path, recursive bool) ([]*Path, error)
}

// Exporter sends a quarantined file's plaintext to an external destination.
// It is the sanctioned way out of quarantine on installations where restore
// is unsupported. Export returns the destination location for display.
type Exporter interface {
	Export(ctx context.Context, name string, r io.Reader, size int64) (string, error)
}

// Encryptor provides at-rest encryption of quarantine copies, so isolated
// files are inert on disk. Decryption requires unlocking with a passphrase.
type Encryptor interface {
	// Setup generates and stores the key material.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key with the passphrase and returns a
	// context for decrypting quarantine copies.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity for the duration of a
// restore or export.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// FlagSource supplies the heuristics-enabled preference, read synchronously
// per classification. Absence of a stored preference means enabled.
type FlagSource interface {
	HeuristicsEnabled() bool
}

// Logger provides structured logging for the service layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
