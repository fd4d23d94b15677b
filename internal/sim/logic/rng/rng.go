// Package rng is a tiny splitmix64 stream. It exists so that every draw made by
// the director is reproducible across Go releases and platforms; math/rand's
// sources are not part of any compatibility promise we want to depend on.
package rng

import "storylet.ai/internal/sim/logic/mathx"

type Rand struct {
	state uint64
}

func New(seed uint64) *Rand {
	return &Rand{state: seed}
}

func (r *Rand) Uint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a value in [0,1).
func (r *Rand) Float64() float64 {
	return mathx.Unit(r.Uint64())
}

// Intn returns a value in [0,n). It panics if n <= 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn with n <= 0")
	}
	return int(r.Uint64() % uint64(n))
}
