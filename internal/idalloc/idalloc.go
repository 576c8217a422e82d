package idalloc

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrSpaceExhausted is returned when every identifier in the configured
// space is already taken.
var ErrSpaceExhausted = errors.New("identifier space exhausted")

// maxSampleAttempts bounds the random-resample phase before the
// allocator falls back to a deterministic scan of the space.
const maxSampleAttempts = 64

// Allocator draws file identifiers from the closed interval [min, max].
// The historical design resampled forever on a tiny keyspace; this one
// keeps the uniform draw but detects exhaustion exactly by scanning the
// space once random sampling stops paying off.
type Allocator struct {
	min int
	max int
}

// New creates an allocator over [min, max]. min must be at least 1 and
// no greater than max.
func New(min, max int) (*Allocator, error) {
	if min < 1 {
		return nil, fmt.Errorf("identifier space must start at 1 or above, got %d", min)
	}
	if max < min {
		return nil, fmt.Errorf("invalid identifier space [%d, %d]", min, max)
	}
	return &Allocator{min: min, max: max}, nil
}

// Allocate returns an identifier not present in taken. Taken ids
// outside [min, max] can occur (imported snapshots written under a
// wider space) and do not count toward exhaustion.
func (a *Allocator) Allocate(taken map[int]struct{}) (int, error) {
	span := a.max - a.min + 1
	inSpace := 0
	for id := range taken {
		if id >= a.min && id <= a.max {
			inSpace++
		}
	}
	if inSpace >= span {
		return 0, ErrSpaceExhausted
	}

	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		id := a.min + rand.Intn(span)
		if _, exists := taken[id]; !exists {
			return id, nil
		}
	}

	// Dense space: scan from a random start so the fallback still
	// spreads allocations instead of clustering at min.
	start := rand.Intn(span)
	for i := 0; i < span; i++ {
		id := a.min + (start+i)%span
		if _, exists := taken[id]; !exists {
			return id, nil
		}
	}

	return 0, ErrSpaceExhausted
}
