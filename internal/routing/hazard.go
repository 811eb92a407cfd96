package routing

// HazardLevel is the persisted per-route danger summary. The vocabulary
// keeps "high" for compatibility with stored documents, but the current
// classifier cutoffs never produce it; see ClassifyHazard.
type HazardLevel string

const (
	HazardSafe     HazardLevel = "safe"
	HazardModerate HazardLevel = "moderate"
	HazardHigh     HazardLevel = "high"
	HazardCritical HazardLevel = "critical"
)

var hazardRank = map[HazardLevel]int{
	HazardSafe:     0,
	HazardModerate: 1,
	HazardHigh:     2,
	HazardCritical: 3,
}

func (h HazardLevel) Rank() int {
	return hazardRank[h]
}

// MaxHazard returns the worse of two levels.
func MaxHazard(a, b HazardLevel) HazardLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ClassifyHazard buckets the worst fire/smoke threshold ratio of a route.
// People counts never enter here: crowding changes routing preference, not
// danger.
func ClassifyHazard(maxRatio, moderateCutoff, criticalCutoff float64) HazardLevel {
	switch {
	case maxRatio >= criticalCutoff:
		return HazardCritical
	case maxRatio >= moderateCutoff:
		return HazardModerate
	default:
		return HazardSafe
	}
}
