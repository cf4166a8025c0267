// Package heuristics classifies file content by structure rather than by
// exact signature: entropy anomalies, magic-byte mismatches, and a battery
// of suspicious-content patterns. Every function here is stateless and pure;
// the verdicts are ephemeral and never persisted.
package heuristics

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Verdict is the outcome of one Analyze call.
type Verdict struct {
	Suspicious bool
	Reason     string
}

// ReasonClean is the reason reported for content with no heuristic findings.
const ReasonClean = "Clean"

// textProbeSize bounds the content-keyword scan: only the leading bytes are
// decoded as text. Keywords past this point belong to large binaries where
// substring hits are mostly noise.
const textProbeSize = 4096

// filenameBlacklist is matched as a case-insensitive substring of the
// file name.
var filenameBlacklist = []string{
	"keylogger",
	"stealer",
	"rat",
	"trojan",
	"spyware",
	"botnet",
}

// contentKeywords are case-insensitive substrings searched in the text probe.
var contentKeywords = []string{
	"powershell",
	"base64",
	"cmd.exe",
	"/bin/sh",
	"wget",
	"curl",
	"vbs",
	"script",
	"eval(",
	"document.write",
}

// entropyThreshold returns the per-extension entropy ceiling above which
// content is flagged. Compressed image formats legitimately run hot, plain
// text runs cold; the unknown-extension default sits between them.
func entropyThreshold(ext string) float64 {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".heic":
		return 8.5
	case ".txt", ".html", ".htm", ".xml", ".json", ".csv", ".md", ".js", ".css", ".log":
		return 6.5
	case ".exe", ".dll", ".so", ".dylib", ".bin", ".elf", ".apk", ".ipa":
		return 7.5
	case ".zip", ".rar", ".7z", ".gz", ".tar", ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx":
		return 8.2
	default:
		return 8.0
	}
}

// magicNumbers maps extensions to their required leading bytes. A file
// claiming one of these extensions with different leading bytes is treated
// as a fake-extension disguise.
var magicNumbers = map[string][]byte{
	".jpg":  {0xFF, 0xD8},
	".jpeg": {0xFF, 0xD8},
	".png":  {0x89, 0x50, 0x4E, 0x47},
	".pdf":  {0x25, 0x50, 0x44, 0x46},
	".docx": {0x50, 0x4B, 0x03, 0x04},
}

// Analyze runs the heuristic battery over a file's name and content.
// Checks run in fixed priority order and short-circuit on the first match;
// the returned reason names the rule that fired, or ReasonClean.
func Analyze(fileName string, content []byte) Verdict {
	lowerName := strings.ToLower(fileName)
	ext := strings.ToLower(filepath.Ext(fileName))

	// 1. Suspicious filename.
	for _, word := range filenameBlacklist {
		if strings.Contains(lowerName, word) {
			return Verdict{Suspicious: true, Reason: "Suspicious filename pattern: " + word}
		}
	}

	// 2. Entropy anomaly. Empty buffers carry no signal.
	if len(content) > 0 {
		if h := Entropy(content); h > entropyThreshold(ext) {
			return Verdict{Suspicious: true, Reason: "Abnormally high entropy for file type"}
		}
	}

	// 3. Fake extension: claimed format's magic bytes missing.
	if magic, ok := magicNumbers[ext]; ok {
		if len(content) < len(magic) || !bytes.Equal(content[:len(magic)], magic) {
			return Verdict{Suspicious: true, Reason: "Fake extension with mismatched header"}
		}
	}

	probe := content
	if len(probe) > textProbeSize {
		probe = probe[:textProbeSize]
	}
	text := strings.ToLower(string(probe))

	// 4. Suspicious content keywords.
	for _, kw := range contentKeywords {
		if strings.Contains(text, kw) {
			return Verdict{Suspicious: true, Reason: "Suspicious content keyword: " + kw}
		}
	}

	// 5. Packer signature.
	if strings.Contains(text, "upx") && strings.Contains(text, "packed") {
		return Verdict{Suspicious: true, Reason: "Packer signature detected"}
	}

	// 6. Dropper pattern.
	if strings.Contains(text, "drop") && strings.Contains(text, ".exe") {
		return Verdict{Suspicious: true, Reason: "Dropper pattern detected"}
	}

	// 7. Self-modifying code pattern.
	if strings.Contains(text, ".text") && strings.Contains(text, ".data") && strings.Contains(text, "virtualalloc") {
		return Verdict{Suspicious: true, Reason: "Self-modifying code pattern detected"}
	}

	// 8. Obfuscated environment-variable usage.
	if strings.Contains(text, "set ") && strings.Contains(text, "%") && strings.Contains(text, "=") {
		return Verdict{Suspicious: true, Reason: "Obfuscated environment variable usage"}
	}

	return Verdict{Suspicious: false, Reason: ReasonClean}
}
