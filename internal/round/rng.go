package round

import (
	"math/rand/v2"
	"time"
)

// LCG is the 32-bit linear congruential generator the rounds draw from, so
// that a round replays exactly from its seed.
type LCG struct {
	state uint32
}

// NewLCG seeds a generator. Equal seeds yield equal sequences.
func NewLCG(seed uint32) *LCG {
	return &LCG{state: seed}
}

// SeedFromTime derives a seed from a session start time.
func SeedFromTime(t time.Time) uint32 {
	return uint32(t.UnixMilli())
}

func (g *LCG) next() uint32 {
	g.state = g.state*1664525 + 1013904223
	return g.state
}

// Float64 returns the next value in [0, 1).
func (g *LCG) Float64() float64 {
	return float64(g.next()) / 4294967296
}

// Chance reports whether the next draw falls below p.
func (g *LCG) Chance(p float64) bool {
	return g.Float64() < p
}

// Uint64 implements rand.Source.
func (g *LCG) Uint64() uint64 {
	hi := uint64(g.next())
	low := uint64(g.next())
	return hi<<32 | low
}

// Rand wraps the generator for shuffles and ranged draws.
func (g *LCG) Rand() *rand.Rand {
	return rand.New(g)
}

// Shuffle performs an in-place Fisher–Yates shuffle.
func Shuffle[T any](r *rand.Rand, s []T) {
	r.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}
