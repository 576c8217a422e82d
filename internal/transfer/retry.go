package transfer

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/hookstore/hookstore/internal/endpoint"
)

// Policy bounds per-chunk retries of transient transport failures.
type Policy struct {
	Attempts int           // total attempts per chunk, minimum 1
	Base     time.Duration // first backoff step
	Max      time.Duration // backoff cap per attempt
}

// DefaultPolicy matches the configured reference values: three attempts
// with exponential backoff from 500ms, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Max:      30 * time.Second,
	}
}

// retryable reports whether another attempt can change the outcome.
// Endpoint responses are retried only for timeout, rate-limit, and
// server-side statuses; other statuses (bad request, not found) are
// permanent. Everything else (network errors, timeouts) stays retryable.
func retryable(err error) bool {
	var te *endpoint.TransportError
	if !errors.As(err, &te) {
		return true
	}
	switch te.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return te.StatusCode >= 500
}

// run invokes fn until it succeeds, a permanent error is hit, the
// attempt budget is spent, or ctx is cancelled. Backoff grows
// exponentially with jitter so sibling retries against the same
// endpoint spread out.
func (p Policy) run(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		back := p.Base << (attempt - 1)
		if back > p.Max {
			back = p.Max
		}
		sleep := back/2 + time.Duration(rand.Int63n(int64(back/2)+1))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
