package metadata

import (
	"golang.org/x/exp/rand"
)

//go:generate mockgen -source random.go -destination ./mocks/random.go -package mock_metadata

// RandomSource supplies the randomness used by the randomized allocation modes and by payload
// generation
type RandomSource interface {
	// Uint64n returns a pseudo-random number in [0, n). n must be > 0.
	Uint64n(n uint64) uint64
}

// NewRandomSource returns a RandomSource backed by a seeded generator
func NewRandomSource(seed uint64) RandomSource {
	return rand.New(rand.NewSource(seed))
}
