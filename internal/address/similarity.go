package address

import "math"

// Similarity scores two addresses on a 0..100 scale. Addresses with
// conflicting leading house numbers score 0 unconditionally: different
// numbers mean different buildings, no matter how alike the rest reads.
// Otherwise both sides are reduced with NormalizeForSimilarity and compared
// by character overlap (longest common subsequence ratio), which is
// symmetric in its arguments.
func Similarity(a, b string) int {
	na, nb := ExtractHouseNumber(a), ExtractHouseNumber(b)
	if na != "" && nb != "" && na != nb {
		return 0
	}

	sa := NormalizeForSimilarity(a)
	sb := NormalizeForSimilarity(b)
	if sa == "" && sb == "" {
		return 100
	}
	if sa == "" || sb == "" {
		return 0
	}

	overlap := lcsLength(sa, sb)
	pct := 200.0 * float64(overlap) / float64(len(sa)+len(sb))
	pct = math.Max(0, math.Min(100, pct))
	return int(math.Round(pct))
}

// lcsLength computes the longest common subsequence length of two short
// byte strings with a rolling one-row table.
func lcsLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
