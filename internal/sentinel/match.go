package sentinel

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Tolerant filename matching reconciles the persisted stored-name reference
// against the quarantine directory's actual contents when the reference no
// longer resolves directly. The stored-name format has changed over the
// system's history (absolute path, bare filename, uuid-prefixed filename),
// and the app container path moves across upgrades, so reconciliation runs
// an ordered list of normalization passes, strictest first, and takes the
// first hit. Each pass is a separate function so it can be tested on its
// own.

// matchExact requires byte-identical names.
func matchExact(entry, target string) bool {
	return entry == target
}

// matchNormalized compares after percent-decoding, trimming whitespace, and
// lowercasing both sides. Catches references persisted from URL-escaped
// provider paths and case-insensitive filesystem drift.
func matchNormalized(entry, target string) bool {
	return normalizeName(entry) == normalizeName(target)
}

// matchStripped compares normalized names after removing a leading
// "<uuid>__" prefix from both sides. Catches records that persisted the
// original basename against files stored under the prefixed convention,
// and vice versa.
func matchStripped(entry, target string) bool {
	return stripIDPrefix(normalizeName(entry)) == stripIDPrefix(normalizeName(target))
}

func normalizeName(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		decoded = s
	}
	return strings.ToLower(strings.TrimSpace(decoded))
}

// stripIDPrefix removes a leading "<uuid>__" from a stored name.
// Names without a valid UUID prefix are returned unchanged.
func stripIDPrefix(s string) string {
	prefix, rest, ok := strings.Cut(s, "__")
	if !ok {
		return s
	}
	if _, err := uuid.Parse(prefix); err != nil {
		return s
	}
	return rest
}

// findTolerantMatch searches directory entries for the target name using
// the ordered passes. Returns the matching entry name as it exists on disk.
func findTolerantMatch(entries []string, target string) (string, bool) {
	passes := []func(entry, target string) bool{
		matchExact,
		matchNormalized,
		matchStripped,
	}
	for _, pass := range passes {
		for _, entry := range entries {
			if pass(entry, target) {
				return entry, true
			}
		}
	}
	return "", false
}
