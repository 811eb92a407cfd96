package routing

import (
	"github.com/technosupport/ts-evac/internal/config"
	"github.com/technosupport/ts-evac/internal/floors"
)

// EdgeCost is the evaluated traversal cost of one edge for one cycle.
type EdgeCost struct {
	Weight           float64 `json:"weight"`
	ExceedsThreshold bool    `json:"exceedsThreshold"`
	ThresholdRatio   float64 `json:"thresholdRatio"`
	DistanceMeters   float64 `json:"distanceMeters"`
}

// CostEdge maps an edge's current hazard state to a scalar cost.
// Pure and monotone nondecreasing in each current-value field: the exceeds
// branch multiplies by factors that grow with the excesses, the normal
// branch by factors that grow with the ratios, and at the branch boundary
// the exceeds branch dominates via ThresholdMultiplier.
func CostEdge(e floors.Edge, distanceMeters float64, w config.Weights) EdgeCost {
	t := e.Thresholds
	cur := e.Current

	pExcess := excess(cur.People, t.People)
	fExcess := excess(cur.Fire, t.Fire)
	sExcess := excess(cur.Smoke, t.Smoke)
	exceeds := pExcess > 0 || fExcess > 0 || sExcess > 0

	ratio := maxf(
		safeRatio(cur.People, t.People),
		safeRatio(cur.Fire, t.Fire),
		safeRatio(cur.Smoke, t.Smoke),
	)

	weight := distanceMeters * e.Weight

	if exceeds {
		weight *= 1 + ratio*w.ThresholdMultiplier
		if fExcess > 0 {
			weight *= 1 + fExcess*w.FirePenalty
		}
		if sExcess > 0 {
			weight *= 1 + sExcess*w.SmokePenalty
		}
		weight += pExcess * w.PeoplePenalty
	} else {
		weight *= 1 + safeRatio(cur.People, t.People)*w.PeopleFactor
		weight *= 1 + safeRatio(cur.Fire, t.Fire)*w.FireFactor
		weight *= 1 + safeRatio(cur.Smoke, t.Smoke)*w.SmokeFactor
	}

	return EdgeCost{
		Weight:           weight,
		ExceedsThreshold: exceeds,
		ThresholdRatio:   ratio,
		DistanceMeters:   distanceMeters,
	}
}

// safeRatio treats a non-positive threshold as unmonitored.
func safeRatio(value, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return value / threshold
}

// excess follows the same unmonitored convention as safeRatio: a field
// without a positive threshold can never trip the exceeds branch.
func excess(value, threshold float64) float64 {
	if threshold <= 0 || value <= threshold {
		return 0
	}
	return value - threshold
}

func maxf(vs ...float64) float64 {
	m := 0.0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}
