package sentinel

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"sentinel-go/internal/heuristics"
	"sentinel-go/internal/signature"
)

// Digest identifies a buffer for signature lookup: the lowercase-hex MD5 of
// the content and its exact byte length. Size is the length of the scanned
// buffer, not the on-disk size, so partial reads are either caught by the
// caller (DigestReader rejects truncation) or hashed consistently.
type Digest struct {
	MD5  string
	Size int64
}

// Detection methods, recorded as provenance on quarantine records.
const (
	MethodSignature = "signature"
	MethodHeuristic = "heuristic"
)

// Detection is a positive classification. Classification carries the threat
// label (the signature label, or "Heuristic" for heuristic hits) and Reason
// explains why the file was flagged.
type Detection struct {
	Classification string
	Reason         string
	Method         string
}

// Engine classifies file content: exact-hash signature matching first, with
// a heuristic fallback when enabled. The engine owns no global state; the
// signature index is an explicitly constructed dependency.
type Engine struct {
	index  *signature.Index
	flags  FlagSource
	logger Logger
}

// NewEngine creates a scan engine. flags may be nil, in which case
// heuristics are always enabled (the default preference).
func NewEngine(index *signature.Index, flags FlagSource, logger Logger) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Engine{index: index, flags: flags, logger: logger}
}

// NewDigest computes the Digest of an in-memory buffer.
func NewDigest(content []byte) *Digest {
	sum := md5.Sum(content)
	return &Digest{MD5: hex.EncodeToString(sum[:]), Size: int64(len(content))}
}

// DigestReader hashes a stream that is expected to deliver exactly
// expectedSize bytes. Callers that stream large files hash once here and
// pass the result to Classify to avoid rehashing. A short or long read is a
// hard error: a truncated read must never be silently mis-hashed as if it
// were the whole file.
func DigestReader(r io.Reader, expectedSize int64) (*Digest, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing content: %v", ErrSourceUnreadable, err)
	}
	if n != expectedSize {
		return nil, fmt.Errorf("%w: truncated read: got %d bytes, expected %d", ErrSourceUnreadable, n, expectedSize)
	}
	return &Digest{MD5: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// Classify returns a Detection for suspicious content, or nil when no
// threat is found. pre carries a precomputed digest for callers that have
// already hashed the content; pass nil to hash here.
//
// A signature match always takes precedence over heuristics, independent of
// the heuristics flag. An unloaded or empty signature index is not an
// error; lookups simply miss and classification falls through.
func (e *Engine) Classify(fileName string, content []byte, pre *Digest) *Detection {
	d := pre
	if d == nil {
		d = NewDigest(content)
	}

	if label, ok := e.index.Lookup(d.MD5, d.Size); ok {
		e.logger.Debug("signature match", "md5", d.MD5, "size", d.Size, "label", label)
		return &Detection{
			Classification: label,
			Reason:         "signature match",
			Method:         MethodSignature,
		}
	}

	if !e.heuristicsEnabled() {
		return nil
	}

	if v := heuristics.Analyze(fileName, content); v.Suspicious {
		e.logger.Debug("heuristic match", "file", fileName, "reason", v.Reason)
		return &Detection{
			Classification: "Heuristic",
			Reason:         v.Reason,
			Method:         MethodHeuristic,
		}
	}

	return nil
}

func (e *Engine) heuristicsEnabled() bool {
	if e.flags == nil {
		return true
	}
	return e.flags.HeuristicsEnabled()
}
