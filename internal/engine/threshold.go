package engine

import "askcode/pkg/types"

// Threshold bounds and the gate's tolerance above the threshold.
const (
	ThresholdFloor = 0.15
	ThresholdCap   = 0.70
	GateSlack      = 0.05
)

// baseThresholds are the per-category starting points.
var baseThresholds = map[types.Category]float64{
	types.CategoryPurpose:        0.30,
	types.CategoryImplementation: 0.25,
	types.CategoryParameter:      0.20,
	types.CategoryDefault:        0.25,
}

// AdaptiveThreshold derives a distribution-sensitive cutoff from the
// merged results. Adjustments are applied in order, each independently
// capped; the result always lands in [ThresholdFloor, ThresholdCap].
func AdaptiveThreshold(category types.Category, results []types.ScoredFragment) float64 {
	base, ok := baseThresholds[category]
	if !ok {
		base = baseThresholds[types.CategoryDefault]
	}

	var (
		minDist, sumDist float64
		distCount        int
		sumScore         float64
	)
	for _, r := range results {
		sumScore += r.FinalScore
		if !r.HasDistance {
			continue
		}
		if distCount == 0 || r.Distance < minDist {
			minDist = r.Distance
		}
		sumDist += r.Distance
		distCount++
	}
	if distCount == 0 || len(results) == 0 {
		return base
	}

	meanDist := sumDist / float64(distCount)
	meanScore := sumScore / float64(len(results))

	if minDist > 0.6 {
		base = min(base+0.15, ThresholdCap)
	}
	if meanDist > 0.5 {
		base = min(base+0.10, 0.60)
	}
	if meanScore < 0.6 {
		base = min(base+0.05, ThresholdCap)
	}
	if meanScore > 0.8 {
		base = max(base-0.05, ThresholdFloor)
	}
	return base
}
