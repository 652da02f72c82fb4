// Package mutate holds the genetic operators that breed feature masks.
package mutate

import (
	"math"
	"math/rand/v2"

	"github.com/snow-ghost/featsel/core"
)

// Tournament picks the fittest of K distinct, uniformly drawn individuals.
type Tournament struct {
	K int
}

func NewTournament(k int) *Tournament { return &Tournament{K: k} }

// Select returns a copy of the winner. Ties go to the earliest drawn
// contender; when every contender is +Inf the first drawn wins.
func (t *Tournament) Select(rng *rand.Rand, pop []core.Genome, fitness []float64) core.Genome {
	k := t.K
	if k < 1 {
		k = 1
	}
	if k > len(pop) {
		k = len(pop)
	}
	// Partial Fisher-Yates over indices gives k distinct contenders.
	idx := make([]int, len(pop))
	for i := range idx {
		idx[i] = i
	}
	best, bestFit := -1, math.Inf(1)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		c := idx[i]
		if best < 0 || fitness[c] < bestFit {
			best, bestFit = c, fitness[c]
		}
	}
	return pop[best].Clone()
}

// OnePoint cuts both parents at the same point in [1, L-1] and swaps tails.
type OnePoint struct{}

func (OnePoint) Cross(rng *rand.Rand, a, b core.Genome) (core.Genome, core.Genome) {
	if len(a) < 2 || len(a) != len(b) {
		return a.Clone(), b.Clone()
	}
	cut := 1 + rng.IntN(len(a)-1)
	c1 := make(core.Genome, len(a))
	c2 := make(core.Genome, len(a))
	copy(c1, a[:cut])
	copy(c1[cut:], b[cut:])
	copy(c2, b[:cut])
	copy(c2[cut:], a[cut:])
	return c1, c2
}

// BitFlip flips every bit independently with the given rate and repairs an
// all-zero result.
type BitFlip struct{}

func (BitFlip) Mutate(rng *rand.Rand, g core.Genome, rate float64) {
	if rate > 0 {
		for i := range g {
			if rng.Float64() < rate {
				g[i] ^= 1
			}
		}
	}
	g.Repair(rng)
}
