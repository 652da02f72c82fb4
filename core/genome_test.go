package core

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGenomeNeverEmpty(t *testing.T) {
	rng := NewRand(1)
	for _, n := range []int{1, 2, 5, 64} {
		for i := 0; i < 200; i++ {
			g := GenerateGenome(rng, n)
			require.Len(t, g, n)
			require.True(t, g.Any(), "all-zero genome of length %d", n)
			for _, b := range g {
				require.Contains(t, []uint8{0, 1}, b)
			}
		}
	}
}

func TestGeneratePopulation(t *testing.T) {
	pop := GeneratePopulation(NewRand(7), 12, 6)
	require.Len(t, pop, 12)
	for _, g := range pop {
		assert.Len(t, g, 6)
		assert.True(t, g.Any())
	}
}

func TestGenerateGenomeDeterministic(t *testing.T) {
	a := GeneratePopulation(NewRand(42), 5, 10)
	b := GeneratePopulation(NewRand(42), 5, 10)
	assert.Equal(t, a, b)
}

func TestGenomeHelpers(t *testing.T) {
	g := Genome{0, 1, 1, 0, 1}
	assert.Equal(t, 3, g.Count())
	assert.Equal(t, []int{1, 2, 4}, g.Selected())
	assert.Equal(t, "01101", g.String())

	c := g.Clone()
	c[0] = 1
	assert.Equal(t, uint8(0), g[0])
	assert.False(t, slices.Equal(g, c))

	empty := Genome{0, 0, 0}
	empty.Repair(NewRand(3))
	assert.Equal(t, 1, empty.Count())
}

func TestGenomeJSON(t *testing.T) {
	b, err := json.Marshal(Genome{1, 0, 1})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,0,1]`, string(b))

	var g Genome
	require.NoError(t, json.Unmarshal([]byte(`[0,1,1]`), &g))
	assert.Equal(t, Genome{0, 1, 1}, g)
}

func TestEvalRandIndependentOfOrder(t *testing.T) {
	a := EvalRand(42, 3, 7).Uint64()
	_ = EvalRand(42, 3, 6).Uint64()
	b := EvalRand(42, 3, 7).Uint64()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, EvalRand(42, 4, 7).Uint64())
	assert.NotEqual(t, a, EvalRand(42, 3, 8).Uint64())
}
