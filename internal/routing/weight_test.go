package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/technosupport/ts-evac/internal/config"
	"github.com/technosupport/ts-evac/internal/floors"
)

func testWeights() config.Weights {
	return config.Weights{
		FirePenalty:         1000,
		SmokePenalty:        500,
		PeoplePenalty:       2,
		PeopleFactor:        0.5,
		FireFactor:          2,
		SmokeFactor:         1.5,
		ThresholdMultiplier: 100,
		HazardModerateRatio: 0.7,
		HazardCriticalRatio: 1.0,
	}
}

func testEdge(people, fire, smoke float64) floors.Edge {
	return floors.Edge{
		ID: "e1", From: "a", To: "b", Weight: 1,
		Thresholds: floors.Thresholds{People: 10, Fire: 0.7, Smoke: 0.6},
		Current:    floors.HazardValues{People: people, Fire: fire, Smoke: smoke},
	}
}

func TestCostEdge_CleanEdge(t *testing.T) {
	c := CostEdge(testEdge(0, 0, 0), 10, testWeights())

	assert.False(t, c.ExceedsThreshold)
	assert.InDelta(t, 10.0, c.Weight, 1e-9)
	assert.InDelta(t, 0.0, c.ThresholdRatio, 1e-9)
	assert.InDelta(t, 10.0, c.DistanceMeters, 1e-9)
}

func TestCostEdge_NormalBranchFactors(t *testing.T) {
	// Halfway to each threshold: w = 10 * 1.25 * 2 * 1.75
	c := CostEdge(testEdge(5, 0.35, 0.3), 10, testWeights())

	assert.False(t, c.ExceedsThreshold)
	assert.InDelta(t, 10*1.25*2*1.75, c.Weight, 1e-9)
	assert.InDelta(t, 0.5, c.ThresholdRatio, 1e-9)
}

func TestCostEdge_ExceedsBranch(t *testing.T) {
	w := testWeights()
	e := testEdge(0, 0.9, 0)
	c := CostEdge(e, 10, w)

	assert.True(t, c.ExceedsThreshold)

	// ratio = 0.9/0.7; w = 10 * (1 + ratio*100) * (1 + 0.2*1000)
	ratio := 0.9 / 0.7
	want := 10 * (1 + ratio*100) * (1 + (0.9-0.7)*1000)
	assert.InDelta(t, want, c.Weight, 1e-6)
	assert.InDelta(t, ratio, c.ThresholdRatio, 1e-9)
}

func TestCostEdge_PeopleExcessIsAdditive(t *testing.T) {
	w := testWeights()
	c := CostEdge(testEdge(14, 0, 0), 10, w)

	assert.True(t, c.ExceedsThreshold)
	ratio := 14.0 / 10.0
	want := 10*(1+ratio*100) + 4*w.PeoplePenalty
	assert.InDelta(t, want, c.Weight, 1e-6)
}

func TestCostEdge_Monotone(t *testing.T) {
	w := testWeights()
	dist := 10.0

	// Cost must never decrease as any current value grows, including across
	// the normal/exceeds branch boundary.
	fields := []func(v float64) floors.Edge{
		func(v float64) floors.Edge { return testEdge(v, 0, 0) },
		func(v float64) floors.Edge { return testEdge(0, v/20, 0) },
		func(v float64) floors.Edge { return testEdge(0, 0, v/20) },
	}
	for fi, mk := range fields {
		prev := -1.0
		for v := 0.0; v <= 20; v += 0.25 {
			c := CostEdge(mk(v), dist, w)
			assert.GreaterOrEqualf(t, c.Weight, prev, "field %d at v=%v", fi, v)
			prev = c.Weight
		}
	}
}

func TestCostEdge_UnmonitoredThreshold(t *testing.T) {
	e := testEdge(5, 0, 0)
	e.Thresholds.People = 0 // unmonitored

	c := CostEdge(e, 10, testWeights())
	assert.False(t, c.ExceedsThreshold)
	assert.InDelta(t, 10.0, c.Weight, 1e-9)
}

func TestCostEdge_Deterministic(t *testing.T) {
	e := testEdge(7, 0.5, 0.8)
	a := CostEdge(e, 12.5, testWeights())
	b := CostEdge(e, 12.5, testWeights())
	assert.Equal(t, a, b)
}
