package signature

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Index is an in-memory signature database mapping (MD5 digest, file size)
// pairs to threat labels. It is loaded once from a text source and read-only
// afterwards; Lookup is safe for concurrent use.
//
// Loading is deliberately one-shot: a second Load against an already-loaded
// index is a no-op. The signature file can be large and is re-requested at
// the start of every scan session, so the guard exists to avoid rescanning
// it each time. Callers that need a fresh index construct a new one.
type Index struct {
	mu      sync.Mutex
	loaded  bool
	entries map[indexKey]string
	skipped int
}

type indexKey struct {
	md5  string
	size int64
}

// NewIndex creates an empty, unloaded signature index.
// An empty index is valid for lookups; everything misses.
func NewIndex() *Index {
	return &Index{entries: make(map[indexKey]string)}
}

// Load reads signature lines from r in the form "MD5:SIZE:LABEL".
// The label may itself contain colons; only the first two fields are split
// off. MD5 digests are lowercased on ingestion. Lines that do not parse are
// skipped, not rejected; a partially readable database is still useful.
// Duplicate keys are last-write-wins.
//
// If the index has already been loaded, Load consumes nothing and returns nil.
func (i *Index) Load(r io.Reader) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.loaded {
		return nil
	}

	scanner := bufio.NewScanner(r)
	// Signature lines are short, but don't fail on the odd oversized one.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		md5, size, label, ok := parseLine(scanner.Text())
		if !ok {
			i.skipped++
			continue
		}
		i.entries[indexKey{md5: md5, size: size}] = label
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading signature source: %w", err)
	}

	i.loaded = true
	return nil
}

// LoadFile loads the index from the signature database at path.
// A missing or unreadable file is a non-fatal condition for scanning: the
// error is returned so the caller can log it, but the index remains valid
// (and empty), and a later LoadFile may be retried.
func (i *Index) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening signature database: %w", err)
	}
	defer f.Close()

	return i.Load(f)
}

// Lookup returns the threat label for an exact (md5, size) match.
// md5 must be lowercase hex; no partial or fuzzy matching is performed.
func (i *Index) Lookup(md5 string, size int64) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	label, ok := i.entries[indexKey{md5: md5, size: size}]
	return label, ok
}

// Len returns the number of loaded signatures.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.entries)
}

// Skipped returns the number of malformed lines ignored during Load.
func (i *Index) Skipped() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.skipped
}

// Loaded reports whether the one-shot load has completed.
func (i *Index) Loaded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loaded
}

// parseLine splits one "MD5:SIZE:LABEL" line.
// Returns ok=false for blank lines, comments, and anything malformed.
func parseLine(line string) (md5 string, size int64, label string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", 0, "", false
	}

	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 3 {
		return "", 0, "", false
	}

	md5 = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(md5) != 32 {
		return "", 0, "", false
	}
	for _, c := range md5 {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", 0, "", false
		}
	}

	size, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || size < 0 {
		return "", 0, "", false
	}

	label = strings.TrimSpace(parts[2])
	if label == "" {
		return "", 0, "", false
	}

	return md5, size, label, true
}
