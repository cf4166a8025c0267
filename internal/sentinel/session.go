package sentinel

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

// Summary aggregates a scan session's counters. Scanned counts every file
// the session attempted, including ones that later failed; Infected counts
// successful quarantines; Errors counts per-file failures (unreadable,
// truncated, or quarantine failed).
type Summary struct {
	Scanned  int64
	Infected int64
	Errors   int64
}

// Session drives one scan run: discover files, classify each, quarantine
// hits. A failure on one file never aborts the rest of the run; only
// context cancellation stops it early.
type Session struct {
	engine  *Engine
	manager *Manager
	fsmgr   FilesystemManager
	logger  Logger
}

func NewSession(engine *Engine, manager *Manager, fsmgr FilesystemManager, logger Logger) *Session {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Session{engine: engine, manager: manager, fsmgr: fsmgr, logger: logger}
}

// Run scans root, which may be a single file or a directory. Cancellation
// is honored between files; the partial summary is returned alongside the
// context error so the caller can still report what was done.
func (s *Session) Run(ctx context.Context, root *Path, recursive bool) (*Summary, error) {
	files := []*Path{root}
	if root.IsDir() {
		var err error
		files, err = s.fsmgr.FindFiles(root, recursive)
		if err != nil {
			return nil, fmt.Errorf("%w: discovering files: %v", ErrSourceUnreadable, err)
		}
	}

	sum := &Summary{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		s.scanOne(ctx, f, sum)
	}

	s.logger.Info("scan complete",
		"path", root.String(), "scanned", sum.Scanned, "infected", sum.Infected, "errors", sum.Errors)
	return sum, nil
}

func (s *Session) scanOne(ctx context.Context, p *Path, sum *Summary) {
	sum.Scanned++

	content, err := s.readFull(p)
	if err != nil {
		sum.Errors++
		s.logger.Error("scan failed", "path", p.String(), "error", err)
		return
	}

	det := s.engine.Classify(filepath.Base(p.String()), content, nil)
	if det == nil {
		s.logger.Debug("file clean", "path", p.String())
		return
	}

	if _, err := s.manager.Quarantine(ctx, p.String(), det.Classification, det.Reason); err != nil {
		sum.Errors++
		s.logger.Error("quarantine failed", "path", p.String(), "error", err)
		return
	}
	sum.Infected++
}

// readFull reads the whole file and checks the byte count against a fresh
// stat. A short read must never be classified as if it were the complete
// file; the mismatch is a hard per-file error.
func (s *Session) readFull(p *Path) ([]byte, error) {
	f, err := s.fsmgr.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	info, err := s.fsmgr.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	if int64(len(content)) != info.Size() {
		return nil, fmt.Errorf("%w: truncated read: got %d bytes, file is %d", ErrSourceUnreadable, len(content), info.Size())
	}
	return content, nil
}
