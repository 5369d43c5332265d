// Package pacing computes randomized inter-request delays that approximate a
// person browsing search results, and blocks for them.
package pacing

import (
	"math/rand/v2"
)

// Rand is the random source consumed by the scheduler. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// NewRand returns a deterministic source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Branch is the index-based adjustment applied to the base delay.
type Branch int

// Index branches.
const (
	BranchNone     Branch = iota
	BranchFirst           // index 1: faster start
	BranchLong            // every fifth request
	BranchModerate        // every third request that is not a fifth
)

func (b Branch) String() string {
	switch b {
	case BranchFirst:
		return "first"
	case BranchLong:
		return "long"
	case BranchModerate:
		return "moderate"
	default:
		return "none"
	}
}

// Multiplier bounds for each branch and for the random long pause.
const (
	FirstScaleMin    = 0.5
	FirstScaleMax    = 0.8
	LongScaleMin     = 1.5
	LongScaleMax     = 2.5
	ModerateScaleMin = 1.2
	ModerateScaleMax = 1.8
	BurstProbability = 0.10
	BurstScaleMin    = 2.0
	BurstScaleMax    = 4.0
)

// BranchFor returns the branch taken for a 1-based request index.
func BranchFor(index int) Branch {
	switch {
	case index == 1:
		return BranchFirst
	case index%5 == 0:
		return BranchLong
	case index%3 == 0:
		return BranchModerate
	default:
		return BranchNone
	}
}

// Decision records every draw behind one delay so callers can assert on the
// path taken rather than on wall-clock sleeps.
type Decision struct {
	Index      int
	Branch     Branch
	Base       float64
	Scale      float64
	Burst      bool
	BurstScale float64
	Seconds    float64
}

// Decide draws a delay for index within [minSeconds, maxSeconds] before
// scaling. Draw order is fixed: base, branch scale, burst roll, burst scale.
func Decide(index int, rng Rand, minSeconds, maxSeconds float64) Decision {
	minSeconds, maxSeconds = bounds(minSeconds, maxSeconds)
	d := Decision{
		Index:      index,
		Branch:     BranchFor(index),
		Scale:      1,
		BurstScale: 1,
	}
	d.Base = uniform(rng, minSeconds, maxSeconds)

	switch d.Branch {
	case BranchFirst:
		d.Scale = uniform(rng, FirstScaleMin, FirstScaleMax)
	case BranchLong:
		d.Scale = uniform(rng, LongScaleMin, LongScaleMax)
	case BranchModerate:
		d.Scale = uniform(rng, ModerateScaleMin, ModerateScaleMax)
	case BranchNone:
	}

	if rng.Float64() < BurstProbability {
		d.Burst = true
		d.BurstScale = uniform(rng, BurstScaleMin, BurstScaleMax)
	}

	d.Seconds = d.Base * d.Scale * d.BurstScale
	if d.Seconds < 0 {
		d.Seconds = 0
	}
	return d
}

// Delay returns the number of seconds to wait before request index.
func Delay(index int, rng Rand, minSeconds, maxSeconds float64) float64 {
	return Decide(index, rng, minSeconds, maxSeconds).Seconds
}

// Uniform draws a flat delay in [minSeconds, maxSeconds] with no index
// adjustments.
func Uniform(rng Rand, minSeconds, maxSeconds float64) float64 {
	minSeconds, maxSeconds = bounds(minSeconds, maxSeconds)
	return uniform(rng, minSeconds, maxSeconds)
}

func uniform(rng Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

func bounds(lo, hi float64) (float64, float64) {
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 0
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}
