package grading

import "math"

// Band converts a raw score against a maximum into an IELTS-style band on
// the 0..9 scale in half-band steps. Linear mapping; swap in a per-test
// conversion table when real band tables are loaded.
func Band(raw, max float64) float64 {
	if max <= 0 {
		return 0
	}
	r := raw / max
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	// round to nearest 0.5
	return math.Round(r*9*2) / 2
}
