package core

import "math/rand/v2"

// NewRand returns a PCG generator seeded from a single 64-bit seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, mix(seed)))
}

// EvalRand derives the generator used for one fitness evaluation. It depends
// only on the run seed and the genome's position, so parallel and sequential
// evaluation draw identical samples.
func EvalRand(seed uint64, generation, index int) *rand.Rand {
	return rand.New(rand.NewPCG(seed^mix(uint64(generation)+1), mix(seed^mix(uint64(index)+0x9e37))))
}

// mix is one splitmix64 step.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
