package offer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jaywantadh/peerlink/internal/code"
	"github.com/jaywantadh/peerlink/internal/storage"
	"github.com/samber/lo"
)

const DefaultMaxAttempts = 1000

var ErrCodeSpaceExhausted = errors.New("no free share code available")

// Offer links a share code to the stored upload waiting for its download.
type Offer struct {
	Code      int
	Location  storage.Location
	FileName  string
	CreatedAt time.Time
}

// Registry maps share codes to pending offers. Codes are allocated under the
// write lock so two concurrent uploads can never be handed the same code.
type Registry struct {
	mu          sync.RWMutex
	offers      map[int]Offer
	gen         code.Generator
	maxAttempts int
}

func NewRegistry(gen code.Generator, maxAttempts int) *Registry {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Registry{
		offers:      make(map[int]Offer),
		gen:         gen,
		maxAttempts: maxAttempts,
	}
}

// Offer registers the upload at loc and returns its newly allocated code.
func (r *Registry) Offer(loc storage.Location, fileName string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		c := r.gen.Next()
		if _, taken := r.offers[c]; taken {
			continue
		}
		r.offers[c] = Offer{
			Code:      c,
			Location:  loc,
			FileName:  fileName,
			CreatedAt: time.Now(),
		}
		return c, nil
	}
	return 0, fmt.Errorf("%w after %d attempts", ErrCodeSpaceExhausted, r.maxAttempts)
}

func (r *Registry) Lookup(c int) (Offer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.offers[c]
	return o, ok
}

// Remove evicts the offer for c and returns it, freeing the code for reuse.
func (r *Registry) Remove(c int) (Offer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.offers[c]
	if ok {
		delete(r.offers, c)
	}
	return o, ok
}

// Codes returns the active codes in ascending order.
func (r *Registry) Codes() []int {
	r.mu.RLock()
	codes := lo.Keys(r.offers)
	r.mu.RUnlock()

	slices.Sort(codes)
	return codes
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.offers)
}
