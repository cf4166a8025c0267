package database

// Schema is the full database schema at the latest migration version.
// It exists so tests can create in-memory databases without running the
// migration machinery. Keep in sync with the files in migrations/files.
const Schema = `
CREATE TABLE quarantine_records (
    id TEXT PRIMARY KEY,
    file_name TEXT NOT NULL,
    stored_name TEXT NOT NULL,
    original_path TEXT NOT NULL,
    classification TEXT NOT NULL,
    reason TEXT NOT NULL,
    quarantined_at TIMESTAMP NOT NULL,
    encrypted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_quarantine_records_quarantined_at ON quarantine_records(quarantined_at);

CREATE TABLE scan_operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    operation TEXT NOT NULL,
    parameters TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    scanned INTEGER NOT NULL DEFAULT 0,
    infected INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0
);
`
