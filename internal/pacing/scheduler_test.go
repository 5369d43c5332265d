package pacing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedRand replays fixed draws so each branch can be asserted exactly.
type scriptedRand struct {
	draws []float64
	next  int
}

func (r *scriptedRand) Float64() float64 {
	v := r.draws[r.next%len(r.draws)]
	r.next++
	return v
}

func TestBranchFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, BranchFirst, BranchFor(1))
	require.Equal(t, BranchNone, BranchFor(2))
	require.Equal(t, BranchModerate, BranchFor(3))
	require.Equal(t, BranchNone, BranchFor(4))
	require.Equal(t, BranchLong, BranchFor(5))
	require.Equal(t, BranchModerate, BranchFor(9))
	require.Equal(t, BranchLong, BranchFor(15), "fifth takes precedence over third")
}

func TestDecideScriptedBranches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		index int
		draws []float64
		want  Decision
	}{
		{
			name:  "first request scales down",
			index: 1,
			draws: []float64{0.5, 0.0, 0.99},
			want:  Decision{Index: 1, Branch: BranchFirst, Base: 2, Scale: 0.5, BurstScale: 1, Seconds: 1},
		},
		{
			name:  "plain index keeps base",
			index: 2,
			draws: []float64{1.0, 0.5},
			want:  Decision{Index: 2, Branch: BranchNone, Base: 3, Scale: 1, BurstScale: 1, Seconds: 3},
		},
		{
			name:  "moderate pause",
			index: 3,
			draws: []float64{0.0, 0.5, 0.5},
			want:  Decision{Index: 3, Branch: BranchModerate, Base: 1, Scale: 1.5, BurstScale: 1, Seconds: 1.5},
		},
		{
			name:  "long pause with burst",
			index: 5,
			draws: []float64{0.0, 0.0, 0.05, 0.5},
			want: Decision{
				Index: 5, Branch: BranchLong, Base: 1, Scale: 1.5,
				Burst: true, BurstScale: 3, Seconds: 4.5,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Decide(tt.index, &scriptedRand{draws: tt.draws}, 1, 3)
			require.Equal(t, tt.want.Branch, got.Branch)
			require.Equal(t, tt.want.Burst, got.Burst)
			require.InDelta(t, tt.want.Base, got.Base, 1e-9)
			require.InDelta(t, tt.want.Scale, got.Scale, 1e-9)
			require.InDelta(t, tt.want.BurstScale, got.BurstScale, 1e-9)
			require.InDelta(t, tt.want.Seconds, got.Seconds, 1e-9)
		})
	}
}

func TestDelayModerateBand(t *testing.T) {
	t.Parallel()

	rng := NewRand(42)
	for i := 0; i < 500; i++ {
		d := Decide(3, rng, 1, 3)
		require.Equal(t, BranchModerate, d.Branch)
		require.GreaterOrEqual(t, d.Scale, ModerateScaleMin)
		require.LessOrEqual(t, d.Scale, ModerateScaleMax)
		lo := 1 * ModerateScaleMin
		hi := 3 * ModerateScaleMax
		if d.Burst {
			lo *= BurstScaleMin
			hi *= BurstScaleMax
		}
		require.GreaterOrEqual(t, d.Seconds, lo)
		require.LessOrEqual(t, d.Seconds, hi)
	}
}

func TestDelayFirstIsSmallerThanFifth(t *testing.T) {
	t.Parallel()

	rng := NewRand(7)
	var first, fifth float64
	const rounds = 2000
	for i := 0; i < rounds; i++ {
		first += Delay(1, rng, 1, 3)
		fifth += Delay(5, rng, 1, 3)
	}
	require.Less(t, first/rounds, fifth/rounds)
}

func TestDelayNeverNegative(t *testing.T) {
	t.Parallel()

	rng := NewRand(1)
	for index := 1; index <= 50; index++ {
		require.GreaterOrEqual(t, Delay(index, rng, -4, -1), 0.0)
		require.GreaterOrEqual(t, Delay(index, rng, 3, 1), 0.0)
	}
}

func TestDelayIsDeterministicForSeed(t *testing.T) {
	t.Parallel()

	a, b := NewRand(99), NewRand(99)
	for index := 1; index <= 20; index++ {
		require.Equal(t, Delay(index, a, 1, 3), Delay(index, b, 1, 3))
	}
}

func TestUniformStaysInBounds(t *testing.T) {
	t.Parallel()

	rng := NewRand(3)
	for i := 0; i < 200; i++ {
		v := Uniform(rng, 1.5, 0.5)
		require.GreaterOrEqual(t, v, 0.5)
		require.LessOrEqual(t, v, 1.5)
	}
}
