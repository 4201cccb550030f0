package core

import "math/rand"

// NewRand returns a private source seeded with seed. Nothing in this module
// draws from the global math/rand source.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// DeriveSeed mixes a base seed with a work-unit index (splitmix64) so
// parallel units get independent, reproducible streams.
func DeriveSeed(base int64, idx int) int64 {
	z := uint64(base) + uint64(idx+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z >> 1)
}
