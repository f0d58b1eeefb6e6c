// Package code produces the numeric share codes handed to uploaders. A code
// is also the TCP port the one-shot transfer listener binds to, so every
// generated value lies in the unprivileged port range.
package code

import (
	"math/rand/v2"
)

const (
	DefaultMin = 49152
	DefaultMax = 65535
)

// Generator yields candidate codes. Values may repeat across calls.
type Generator interface {
	Next() int
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func() int

func (f GeneratorFunc) Next() int { return f() }

// RandomGenerator draws uniformly from [Min, Max].
type RandomGenerator struct {
	Min int
	Max int
}

// NewRandomGenerator returns a generator over [lo, hi]. Out of range or
// inverted bounds fall back to the dynamic port range.
func NewRandomGenerator(lo, hi int) RandomGenerator {
	if lo < 1024 || hi > 65535 || lo > hi {
		return RandomGenerator{Min: DefaultMin, Max: DefaultMax}
	}
	return RandomGenerator{Min: lo, Max: hi}
}

func (g RandomGenerator) Next() int {
	return g.Min + rand.IntN(g.Max-g.Min+1)
}
