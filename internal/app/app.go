package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"sentinel-go/internal/config"
	"sentinel-go/internal/database"
	"sentinel-go/internal/encryption"
	"sentinel-go/internal/export"
	"sentinel-go/internal/fs"
	"sentinel-go/internal/model"
	"sentinel-go/internal/sentinel"
	"sentinel-go/internal/signature"
)

// App is the application layer between the CLI and the scan/quarantine
// core. It constructs all dependencies from config, exposes high-level
// operations that accept raw string paths, and manages the store lifecycle
// on Close.
type App struct {
	cfg       *config.Config
	store     sentinel.Store
	fsmgr     sentinel.FilesystemManager
	encryptor sentinel.Encryptor
	exporter  sentinel.Exporter
	index     *signature.Index
	engine    *sentinel.Engine
	manager   *sentinel.Manager
	session   *sentinel.Session
	logger    sentinel.Logger
	logFile   *os.File
}

// configFlags adapts the config's heuristics preference to the engine's
// FlagSource, re-reading it per classification.
type configFlags struct {
	cfg *config.Config
}

func (f configFlags) HeuristicsEnabled() bool { return f.cfg.HeuristicsEnabled() }

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Scan", "Restore").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fsmgr := fs.NewOSFilesystemManager()

	store, err := database.NewStoreFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// A missing or unreadable signature file degrades to heuristics-only
	// scanning rather than refusing to run.
	index := signature.NewIndex()
	if cfg.Signatures.Path != "" {
		if err := index.LoadFile(cfg.Signatures.Path); err != nil {
			logger.Warn("signature database unavailable, continuing without it",
				"path", cfg.Signatures.Path, "error", err)
		} else if index.Skipped() > 0 {
			logger.Warn("skipped malformed signature lines",
				"path", cfg.Signatures.Path, "skipped", index.Skipped())
		}
	}

	encryptor, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	exporter, err := export.NewExporterFromConfig(context.Background(), cfg.Export)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	engine := sentinel.NewEngine(index, configFlags{cfg: cfg}, logger)
	manager := sentinel.NewManager(store, fsmgr, encryptor, logger, sentinel.UUIDGenerator{}, cfg.QuarantineDir, cfg.Restore.Enabled)
	session := sentinel.NewSession(engine, manager, fsmgr, logger)

	return &App{
		cfg:       cfg,
		store:     store,
		fsmgr:     fsmgr,
		encryptor: encryptor,
		exporter:  exporter,
		index:     index,
		engine:    engine,
		manager:   manager,
		session:   session,
		logger:    logger,
		logFile:   logFile,
	}, nil
}

// Scan resolves the given path and runs a scan session over it, recording
// the run in the scan-operation history with its final counters.
func (a *App) Scan(ctx context.Context, rawPath string, recursive bool) (*sentinel.Summary, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	op, err := a.store.CreateScanOperation("scan", fmt.Sprintf("path=%s recursive=%t", p.String(), recursive))
	if err != nil {
		return nil, fmt.Errorf("recording scan operation: %w", err)
	}

	sum, runErr := a.session.Run(ctx, p, recursive)
	status := "completed"
	if runErr != nil {
		status = "aborted"
	}
	if sum == nil {
		sum = &sentinel.Summary{}
	}

	if err := a.store.FinishScanOperation(op.ID, status, sum.Scanned, sum.Infected, sum.Errors); err != nil {
		a.logger.Error("finishing scan operation", "id", op.ID, "error", err)
	}

	return sum, runErr
}

// List returns all quarantine records whose files can still be located.
func (a *App) List() ([]*model.QuarantineRecord, error) {
	return a.manager.List()
}

// Restore moves a quarantined file back to its original location.
// passphrase is required when the copy is encrypted at rest.
func (a *App) Restore(ctx context.Context, id string, passphrase string) (string, error) {
	dctx, err := a.unlock(id, passphrase)
	if err != nil {
		return "", err
	}
	return a.manager.Restore(ctx, id, dctx)
}

// Delete removes a quarantined file and its record.
func (a *App) Delete(ctx context.Context, id string) error {
	return a.manager.Delete(ctx, id)
}

// Export streams a quarantined file's plaintext to the configured export
// destination and returns the destination location.
func (a *App) Export(ctx context.Context, id string, passphrase string) (string, error) {
	dctx, err := a.unlock(id, passphrase)
	if err != nil {
		return "", err
	}
	return a.manager.Export(ctx, id, a.exporter, dctx)
}

// MigrateRecords rewrites legacy stored-name references and returns the
// number of records migrated.
func (a *App) MigrateRecords() (int, error) {
	return a.manager.MigrateLegacyRecords()
}

// History returns the most recent scan operations.
func (a *App) History(limit int) ([]*model.ScanOperation, error) {
	return a.store.ListScanOperations(limit)
}

// SetupKeys generates the at-rest encryption key pair.
func (a *App) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is not enabled in config")
	}
	return a.encryptor.Setup(passphrase)
}

// RestoreEnabled reports whether this installation permits restores.
func (a *App) RestoreEnabled() bool {
	return a.cfg.Restore.Enabled
}

// BackupDatabase writes a consistent snapshot of the quarantine index to
// destPath.
func (a *App) BackupDatabase(destPath string) error {
	return a.store.BackupTo(destPath)
}

// MigrateDatabase runs pending schema migrations. Used by "db migrate"
// before any other command will accept the database.
func MigrateDatabase(cfg *config.Config) error {
	store, err := database.NewStoreFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	defer store.Close()

	return store.Migrate()
}

// unlock produces a decryption context for a record when one is needed.
// Records stored in plaintext never need a passphrase.
func (a *App) unlock(id string, passphrase string) (sentinel.DecryptionContext, error) {
	rec, err := a.store.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrPersistence, err)
	}
	if rec == nil || !rec.Encrypted {
		return nil, nil
	}
	if a.encryptor == nil {
		return nil, fmt.Errorf("record %s is encrypted but encryption is not enabled in config", id)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("record %s is encrypted: passphrase required", id)
	}
	return a.encryptor.Unlock(passphrase)
}

// Close closes the store and the log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
