package code

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandomGenerator_StaysInRange(t *testing.T) {
	req := require.New(t)
	g := NewRandomGenerator(50000, 50010)

	for i := 0; i < 1000; i++ {
		n := g.Next()
		req.GreaterOrEqual(n, 50000)
		req.LessOrEqual(n, 50010)
	}
}

func TestNewRandomGenerator_InvalidBoundsFallBack(t *testing.T) {
	req := require.New(t)

	req.Equal(RandomGenerator{Min: DefaultMin, Max: DefaultMax}, NewRandomGenerator(80, 90))
	req.Equal(RandomGenerator{Min: DefaultMin, Max: DefaultMax}, NewRandomGenerator(60000, 50000))
	req.Equal(RandomGenerator{Min: DefaultMin, Max: DefaultMax}, NewRandomGenerator(50000, 70000))
}

func TestRandomGenerator_SingleValueRange(t *testing.T) {
	g := NewRandomGenerator(55555, 55555)
	require.Equal(t, 55555, g.Next())
}

func TestGeneratorFunc(t *testing.T) {
	seq := []int{1, 2, 3}
	i := 0
	g := GeneratorFunc(func() int {
		v := seq[i]
		i++
		return v
	})

	require.Equal(t, 1, g.Next())
	require.Equal(t, 2, g.Next())
}
