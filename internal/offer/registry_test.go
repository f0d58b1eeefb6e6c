package offer

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jaywantadh/peerlink/internal/code"
	"github.com/jaywantadh/peerlink/internal/storage"
	"github.com/stretchr/testify/require"
)

func sequence(values ...int) code.Generator {
	var mu sync.Mutex
	i := 0
	return code.GeneratorFunc(func() int {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v
	})
}

func TestRegistry_Offer_And_Lookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(sequence(50001), 0)

	// Given an empty registry
	req.Zero(registry.Len())

	// When a file is offered
	c, err := registry.Offer("/tmp/uploads/x_a.txt", "a.txt")
	req.NoError(err)

	// Then the code resolves to the stored location
	req.Equal(50001, c)
	o, ok := registry.Lookup(c)
	req.True(ok)
	req.Equal(storage.Location("/tmp/uploads/x_a.txt"), o.Location)
	req.Equal("a.txt", o.FileName)
	req.Equal(c, o.Code)
	req.False(o.CreatedAt.IsZero())
}

func TestRegistry_Offer_SkipsTakenCodes(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(sequence(50001, 50001, 50001, 50002), 0)

	first, err := registry.Offer("one", "one")
	req.NoError(err)
	second, err := registry.Offer("two", "two")
	req.NoError(err)

	req.Equal(50001, first)
	req.Equal(50002, second)
}

func TestRegistry_Offer_ExhaustedCodeSpace(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(sequence(50001), 5)

	_, err := registry.Offer("one", "one")
	req.NoError(err)

	// When the generator can only produce a taken code
	_, err = registry.Offer("two", "two")

	// Then the registry gives up instead of spinning forever
	req.True(errors.Is(err, ErrCodeSpaceExhausted))
	req.Equal(1, registry.Len())
}

func TestRegistry_Remove_FreesCode(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(sequence(50001), 3)

	c, err := registry.Offer("one", "one")
	req.NoError(err)

	removed, ok := registry.Remove(c)
	req.True(ok)
	req.Equal(storage.Location("one"), removed.Location)

	_, ok = registry.Lookup(c)
	req.False(ok)
	_, ok = registry.Remove(c)
	req.False(ok)

	// The same code can now be handed out again
	again, err := registry.Offer("two", "two")
	req.NoError(err)
	req.Equal(c, again)
}

func TestRegistry_Offer_ConcurrentCallersGetDistinctCodes(t *testing.T) {
	req := require.New(t)
	const n = 200
	// A narrow range forces plenty of collisions
	registry := NewRegistry(code.NewRandomGenerator(50000, 50000+n+50), 100000)

	var wg sync.WaitGroup
	codes := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], errs[i] = registry.Offer(storage.Location(fmt.Sprintf("file-%d", i)), "f")
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i, c := range codes {
		req.NoError(errs[i])
		req.False(seen[c], "code %d handed out twice", c)
		seen[c] = true

		o, ok := registry.Lookup(c)
		req.True(ok)
		req.Equal(storage.Location(fmt.Sprintf("file-%d", i)), o.Location)
	}
	req.Equal(n, registry.Len())
	req.Len(registry.Codes(), n)
	req.IsIncreasing(registry.Codes())
}
