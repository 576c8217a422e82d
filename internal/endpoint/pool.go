package endpoint

import (
	"errors"
)

// ErrEmptyPool is returned when no upload endpoints are configured.
var ErrEmptyPool = errors.New("no upload endpoints configured")

// Pool holds the ordered list of upload endpoint identities. Chunk
// ordinals map onto members round-robin, so the same ordinal always
// lands on the same endpoint for a fixed pool.
type Pool struct {
	endpoints []string
}

// NewPool creates a pool from the configured endpoint URLs.
func NewPool(endpoints []string) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, ErrEmptyPool
	}
	cp := make([]string, len(endpoints))
	copy(cp, endpoints)
	return &Pool{endpoints: cp}, nil
}

// Assign returns the endpoint responsible for the given chunk ordinal.
func (p *Pool) Assign(ordinal int) (string, error) {
	if len(p.endpoints) == 0 {
		return "", ErrEmptyPool
	}
	return p.endpoints[ordinal%len(p.endpoints)], nil
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	return len(p.endpoints)
}
