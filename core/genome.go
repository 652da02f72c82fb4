package core

import (
	"encoding/json"
	"math/rand/v2"
	"strings"
)

// Genome is a binary feature mask, one bit per candidate feature.
type Genome []uint8

// GenerateGenome returns a random mask of the given length that has at
// least one bit set.
func GenerateGenome(rng *rand.Rand, length int) Genome {
	g := make(Genome, length)
	for i := range g {
		g[i] = uint8(rng.IntN(2))
	}
	g.Repair(rng)
	return g
}

// GeneratePopulation returns size independent random genomes.
func GeneratePopulation(rng *rand.Rand, size, length int) []Genome {
	pop := make([]Genome, size)
	for i := range pop {
		pop[i] = GenerateGenome(rng, length)
	}
	return pop
}

// Repair sets one random bit when the mask is all-zero.
func (g Genome) Repair(rng *rand.Rand) {
	if len(g) == 0 || g.Any() {
		return
	}
	g[rng.IntN(len(g))] = 1
}

func (g Genome) Clone() Genome {
	out := make(Genome, len(g))
	copy(out, g)
	return out
}

func (g Genome) Any() bool {
	for _, b := range g {
		if b != 0 {
			return true
		}
	}
	return false
}

func (g Genome) Count() int {
	n := 0
	for _, b := range g {
		if b != 0 {
			n++
		}
	}
	return n
}

// Selected returns the indices of set bits in ascending order.
func (g Genome) Selected() []int {
	idx := make([]int, 0, len(g))
	for i, b := range g {
		if b != 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

func (g Genome) String() string {
	var b strings.Builder
	for _, bit := range g {
		if bit != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// MarshalJSON encodes the mask as a list of 0/1 integers rather than base64.
func (g Genome) MarshalJSON() ([]byte, error) {
	bits := make([]int, len(g))
	for i, b := range g {
		bits[i] = int(b)
	}
	return json.Marshal(bits)
}

func (g *Genome) UnmarshalJSON(data []byte) error {
	var bits []int
	if err := json.Unmarshal(data, &bits); err != nil {
		return err
	}
	out := make(Genome, len(bits))
	for i, b := range bits {
		if b != 0 {
			out[i] = 1
		}
	}
	*g = out
	return nil
}
