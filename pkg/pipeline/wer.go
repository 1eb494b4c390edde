package pipeline

import "strings"

// WordErrorRate returns the token-level Levenshtein distance between
// reference and hypothesis divided by the reference length. Tokens are
// whitespace-separated and compared verbatim. An empty reference scores
// 0 against anything; a hypothesis much longer than the reference can
// score above 1.
func WordErrorRate(reference, hypothesis string) float64 {
	ref := strings.Fields(reference)
	hyp := strings.Fields(hypothesis)
	if len(ref) == 0 {
		return 0
	}

	prev := make([]int, len(hyp)+1)
	curr := make([]int, len(hyp)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ref); i++ {
		curr[0] = i
		for j := 1; j <= len(hyp); j++ {
			if ref[i-1] == hyp[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = min(prev[j], curr[j-1], prev[j-1]) + 1
			}
		}
		prev, curr = curr, prev
	}
	return float64(prev[len(hyp)]) / float64(len(ref))
}
