package clonality

// Levenshtein computes the single-character edit distance (insertions,
// deletions, substitutions) between two strings using the two-row method.
func Levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(a); i++ {
		cur[0] = i + 1
		for j := 0; j < len(b); j++ {
			ins := prev[j+1] + 1
			del := cur[j] + 1
			sub := prev[j]
			if a[i] != b[j] {
				sub++
			}
			cur[j+1] = min(ins, del, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Similarity scores two CDR3 peptides in [0,1]:
//
//	1 − (edit/maxLen + lengthPenalty × 0.5)
//
// where lengthPenalty = |len1−len2|/maxLen when the length gap exceeds two
// residues, else 0. The result is floored at 0.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	maxLen := max(len(a), len(b))
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}

	var lengthPenalty float64
	if diff > 2 {
		lengthPenalty = float64(diff) / float64(maxLen)
	}

	sim := 1.0 - (float64(Levenshtein(a, b))/float64(maxLen) + lengthPenalty*0.5)
	if sim < 0 {
		return 0
	}
	return sim
}
