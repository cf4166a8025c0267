package heuristics

import "math"

// Entropy computes the base-2 Shannon entropy of b over its byte histogram:
// H = -Σ p_i·log2(p_i). The result is in [0, 8] bits per byte; an empty
// buffer has entropy 0. High entropy is a proxy for encrypted, packed, or
// compressed content, which malicious payloads often exhibit atypically for
// their claimed file type.
func Entropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}

	var hist [256]int
	for _, c := range b {
		hist[c]++
	}

	total := float64(len(b))
	var h float64
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		h -= p * math.Log2(p)
	}
	return h
}
