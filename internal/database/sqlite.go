package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sentinel-go/internal/database/migrations"
	"sentinel-go/internal/model"
	"sentinel-go/internal/sentinel"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the quarantine index and scan history on SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock sentinel.Clock
	idgen sentinel.IDGenerator
	path  string
}

var _ sentinel.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// path can be a file path or ":memory:" for an in-memory database.
// clock and idgen may be nil, in which case real implementations are used.
func NewSQLiteStore(path string, clock sentinel.Clock, idgen sentinel.IDGenerator) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	s := NewSQLiteStoreFromDB(db, clock, idgen)
	s.path = path
	return s, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB, clock sentinel.Clock, idgen sentinel.IDGenerator) *SQLiteStore {
	if clock == nil {
		clock = sentinel.RealClock{}
	}
	if idgen == nil {
		idgen = sentinel.UUIDGenerator{}
	}
	return &SQLiteStore{db: db, clock: clock, idgen: idgen}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// Exported for tests that need a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite defaults foreign keys to OFF for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate runs all pending schema migrations.
func (s *SQLiteStore) Migrate() error {
	return migrations.MigrateUp(s.db)
}

const recordColumns = "id, file_name, stored_name, original_path, classification, reason, encrypted, quarantined_at"

func (s *SQLiteStore) Insert(params sentinel.InsertParams) (*model.QuarantineRecord, error) {
	rec := &model.QuarantineRecord{
		ID:             s.idgen.New(),
		FileName:       params.FileName,
		StoredName:     params.StoredName,
		OriginalPath:   params.OriginalPath,
		Classification: params.Classification,
		Reason:         params.Reason,
		Encrypted:      params.Encrypted,
		QuarantinedAt:  s.clock.Now().UTC(),
	}

	_, err := s.db.Exec(
		"INSERT INTO quarantine_records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.FileName, rec.StoredName, rec.OriginalPath,
		rec.Classification, rec.Reason, rec.Encrypted, rec.QuarantinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting quarantine record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) GetAll() ([]*model.QuarantineRecord, error) {
	rows, err := s.db.Query(
		"SELECT " + recordColumns + " FROM quarantine_records ORDER BY quarantined_at DESC, id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing quarantine records: %w", err)
	}
	defer rows.Close()

	var recs []*model.QuarantineRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing quarantine records: %w", err)
	}
	return recs, nil
}

func (s *SQLiteStore) GetByID(id string) (*model.QuarantineRecord, error) {
	row := s.db.QueryRow(
		"SELECT "+recordColumns+" FROM quarantine_records WHERE id = ?", id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM quarantine_records WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting quarantine record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateStoredName(id string, storedName string) error {
	res, err := s.db.Exec(
		"UPDATE quarantine_records SET stored_name = ? WHERE id = ?", storedName, id,
	)
	if err != nil {
		return fmt.Errorf("updating stored name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating stored name: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating stored name: no record with id %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.QuarantineRecord, error) {
	rec := &model.QuarantineRecord{}
	err := row.Scan(
		&rec.ID, &rec.FileName, &rec.StoredName, &rec.OriginalPath,
		&rec.Classification, &rec.Reason, &rec.Encrypted, &rec.QuarantinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning quarantine record: %w", err)
	}
	return rec, nil
}

// Scan-operation history.

const operationColumns = "id, started_at, finished_at, operation, parameters, status, scanned, infected, errors"

func (s *SQLiteStore) CreateScanOperation(operation string, parameters string) (*model.ScanOperation, error) {
	op := &model.ScanOperation{
		StartedAt:  s.clock.Now().UTC(),
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
	}

	res, err := s.db.Exec(
		"INSERT INTO scan_operations (started_at, operation, parameters, status, scanned, infected, errors) VALUES (?, ?, ?, ?, 0, 0, 0)",
		op.StartedAt, op.Operation, op.Parameters, op.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("creating scan operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating scan operation: %w", err)
	}
	return op, nil
}

func (s *SQLiteStore) FinishScanOperation(id int64, status string, scanned, infected, errs int64) error {
	res, err := s.db.Exec(
		"UPDATE scan_operations SET finished_at = ?, status = ?, scanned = ?, infected = ?, errors = ? WHERE id = ?",
		s.clock.Now().UTC(), status, scanned, infected, errs, id,
	)
	if err != nil {
		return fmt.Errorf("finishing scan operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing scan operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing scan operation: no operation with id %d", id)
	}
	return nil
}

func (s *SQLiteStore) ListScanOperations(limit int) ([]*model.ScanOperation, error) {
	rows, err := s.db.Query(
		"SELECT "+operationColumns+" FROM scan_operations ORDER BY id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scan operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.ScanOperation
	for rows.Next() {
		op := &model.ScanOperation{}
		err := rows.Scan(
			&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation,
			&op.Parameters, &op.Status, &op.Scanned, &op.Infected, &op.Errors,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scan operations: %w", err)
	}
	return ops, nil
}

// BackupTo writes a consistent snapshot of the database to destPath using
// VACUUM INTO. destPath must not already exist.
func (s *SQLiteStore) BackupTo(destPath string) error {
	// VACUUM INTO takes a string literal, not a bound parameter.
	escaped := strings.ReplaceAll(destPath, "'", "''")
	if _, err := s.db.Exec("VACUUM INTO '" + escaped + "'"); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Path returns the database file path, or empty for wrapped connections.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
