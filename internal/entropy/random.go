// Package entropy provides the single seeded random sequence a simulation
// run draws from. Seed 0 asks for a fresh seed from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// New returns a random source for seed together with the seed actually used.
// Recording the resolved seed makes every run reproducible after the fact.
func New(seed int64) (*mrand.Rand, int64) {
	if seed == 0 {
		seed = CryptoSeed()
	}
	return mrand.New(mrand.NewSource(seed)), seed
}

// CryptoSeed draws a positive seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 1
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if seed == 0 {
		seed = 1
	}
	return seed
}

// Chance reports whether an event with probability p happens.
func Chance(rng *mrand.Rand, p float64) bool {
	return rng.Float64() < p
}

// SampleIndices picks k distinct values from candidates without replacement,
// preserving the draw order. candidates is reordered in place.
func SampleIndices(rng *mrand.Rand, candidates []int, k int) []int {
	for i := 0; i < k; i++ {
		j := i + rng.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:k]
}
