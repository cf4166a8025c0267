package model

import (
	"database/sql"
	"time"
)

// QuarantineRecord is the durable index entry for a quarantined file.
// StoredName is the canonical reference to the copy inside the quarantine
// directory: a relative name of the form "<uuid>__<original basename>".
// Legacy records may instead hold an absolute path from a previous app
// container, or a bare basename; both are handled by the tolerant matcher.
type QuarantineRecord struct {
	ID             string // UUID, immutable
	FileName       string // display name, not necessarily unique
	StoredName     string // relative name inside the quarantine directory
	OriginalPath   string // absolute path at time of quarantine, best-effort
	Classification string
	Reason         string
	Encrypted      bool // copy is age-encrypted at rest
	QuarantinedAt  time.Time
}

// ScanOperation records one scan session for history and progress reporting.
type ScanOperation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string // CLI command, e.g. "Scan"
	Parameters string
	Status     string // "running", "completed", "aborted"
	Scanned    int64
	Infected   int64
	Errors     int64
}
