package grading

import "unicode"

// normalize canonicalizes a gap-fill response before key comparison:
// casefold, drop punctuation (hyphens included, so "check-in" and "checkin"
// collide) and collapse runs of whitespace to a single space.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsPunct(r):
			// dropped entirely, does not break a word
		default:
			if pendingSpace && len(out) > 0 {
				out = append(out, ' ')
			}
			pendingSpace = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// levenshtein is the edit distance between two normalized answers, unit cost
// for insert, delete and substitute. Used to give partial credit for a
// near-miss spelling of an accepted answer.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	// single-row DP; answers are short, keep allocations to one slice
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			sub := diag
			if ra[i-1] != rb[j-1] {
				sub++
			}
			diag = row[j]
			d := sub
			if v := row[j] + 1; v < d { // deletion
				d = v
			}
			if v := row[j-1] + 1; v < d { // insertion
				d = v
			}
			row[j] = d
		}
	}
	return row[len(rb)]
}
