package sentinel

import "errors"

// Error taxonomy for the scan/quarantine core. Callers classify failures
// with errors.Is; user-facing layers turn ErrNotFound and
// ErrRestoreUnsupported into actionable guidance rather than generic
// failures.
var (
	// ErrSourceUnreadable means a file could not be opened or read for
	// scanning or quarantine.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrCopyFailed means both the direct and the streaming copy into the
	// quarantine directory failed.
	ErrCopyFailed = errors.New("copy into quarantine failed")

	// ErrNotFound means an operation referenced a record or file that could
	// not be resolved, even after tolerant matching.
	ErrNotFound = errors.New("not found")

	// ErrRestoreUnsupported means this installation does not permit writing
	// files back to their original locations. It is an explicit outcome, not
	// an I/O failure; callers should offer export instead.
	ErrRestoreUnsupported = errors.New("restore not supported here")

	// ErrConflict means another mutation of the same record is in flight.
	ErrConflict = errors.New("operation already in progress for this record")

	// ErrPersistence means the quarantine index could not be read or written.
	ErrPersistence = errors.New("persistence failure")
)
