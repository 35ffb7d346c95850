package extract

import "strings"

// Candidate is one table found in a document: its position in document
// order and its header row.
type Candidate struct {
	Index   int
	Headers []string
}

// Score counts the distinct headers present in expected. Headers are
// compared trimmed and lowercased; expected must already be lowercased.
func Score(headers []string, expected map[string]struct{}) int {
	seen := make(map[string]struct{}, len(headers))
	n := 0
	for _, h := range headers {
		k := strings.ToLower(strings.TrimSpace(h))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := expected[k]; ok {
			n++
		}
	}
	return n
}

// SelectTable returns the position in candidates of the highest-scoring
// table and its score. Ties go to the earliest candidate. ok is false only
// when candidates is empty.
func SelectTable(candidates []Candidate, expected map[string]struct{}) (best int, score int, ok bool) {
	if len(candidates) == 0 {
		return -1, 0, false
	}
	best, score = 0, -1
	for i, c := range candidates {
		s := Score(c.Headers, expected)
		if s > score {
			best, score = i, s
		}
	}
	return best, score, true
}
