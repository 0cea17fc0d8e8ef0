package query

import "github.com/xrash/smetrics"

// SimilarityFunc scores how alike two tokens are on a 0-100 scale.
// It is injected into the analyzer so tests can swap the strategy.
type SimilarityFunc func(a, b string) float64

// Ratio is the default similarity strategy: a normalized edit-distance
// ratio where substitutions cost 2, matching the classic sequence-matcher
// formulation. Identical strings score 100.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 2)
	return 100 * (1 - float64(dist)/float64(total))
}

// correctionThreshold is the minimum similarity ratio for folding a token
// into a domain vocabulary term.
const correctionThreshold = 80

// correct folds token into the closest domain term when the similarity
// ratio clears the threshold, otherwise returns the token unchanged. The
// domain table is treated as immutable; terms is the deterministic
// iteration order.
func correct(token string, terms []string, sim SimilarityFunc) string {
	best := ""
	bestScore := 0.0
	for _, t := range terms {
		if s := sim(token, t); s > bestScore {
			best, bestScore = t, s
		}
	}
	if best != "" && bestScore > correctionThreshold {
		return best
	}
	return token
}
