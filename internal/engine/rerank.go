package engine

import (
	"sort"

	"askcode/pkg/types"
)

// Bonus weights. Kept as engine constants pending product guidance on
// making them tunable.
const (
	overlapBonusFactor = 0.4
	docstringBonus     = 0.15
	defTypeBonus       = 0.10

	// nonVectorDistance substitutes for channels that report no
	// similarity, so their base contribution is zero and ranking relies
	// on the bonuses.
	nonVectorDistance = 1.0
)

// Rerank merges all channel results into one ordered list. Duplicates by
// the (filePath, startLine, endLine, embedType) key are dropped with
// first occurrence winning; the fixed channel order decides precedence.
// Final scores are base similarity times the channel weight plus lexical
// and metadata bonuses, and are always >= 0.
func Rerank(qc types.QueryContext, channels map[string][]types.ChannelResult, weights map[string]float64) []types.ScoredFragment {
	keywords := make(map[string]bool, len(qc.Keywords))
	for _, kw := range qc.Keywords {
		keywords[kw] = true
	}

	seen := make(map[types.Key]bool)
	var merged []types.ScoredFragment

	for _, channel := range channelOrder {
		weight, ok := weights[channel]
		if !ok {
			weight = 1.0
		}
		for _, cr := range channels[channel] {
			key := cr.Fragment.Key()
			if seen[key] {
				continue
			}
			seen[key] = true

			distance := nonVectorDistance
			if cr.HasDistance {
				distance = cr.Distance
			}
			base := (1 - distance) * weight
			if base < 0 {
				base = 0
			}

			bonus := keywordOverlap(keywords, cr.Fragment) * overlapBonusFactor
			if cr.Fragment.Docstring != "" {
				bonus += docstringBonus
			}
			if cr.Fragment.EmbedType == types.EmbedDef {
				bonus += defTypeBonus
			}

			merged = append(merged, types.ScoredFragment{
				Fragment:    cr.Fragment,
				Channel:     channel,
				Distance:    cr.Distance,
				HasDistance: cr.HasDistance,
				FinalScore:  base + bonus,
			})
		}
	}

	// Stable sort keeps merge order as the tie-break.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FinalScore > merged[j].FinalScore
	})
	return merged
}

// keywordOverlap is |keywords ∩ (tags ∪ calls)| / max(|keywords|, 1).
func keywordOverlap(keywords map[string]bool, frag types.Fragment) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matched := make(map[string]bool)
	for _, t := range frag.Tags {
		if keywords[t] {
			matched[t] = true
		}
	}
	for _, c := range frag.Calls {
		if keywords[c] {
			matched[c] = true
		}
	}
	return float64(len(matched)) / float64(len(keywords))
}
