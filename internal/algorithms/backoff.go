package algorithms

import (
	"math/rand"
	"sync"
	"time"
)

// maxShift keeps 1<<attempt inside int64.
const maxShift = 62

// exponentialBackoff waits initial * 2^attempt, capped at max.
type exponentialBackoff struct {
	initial, maxDelay time.Duration
}

func newExponentialBackoff(initial, maxDelay time.Duration) *exponentialBackoff {
	return &exponentialBackoff{initial: initial, maxDelay: maxDelay}
}

func (b *exponentialBackoff) NextDelay(attempt int, _ error) time.Duration {
	return exponentialDelay(attempt, b.initial, b.maxDelay)
}

// jitteredBackoff scales the exponential delay by a random factor in
// [1-jitter, 1+jitter] so tasks failing together do not retry together.
type jitteredBackoff struct {
	initial, maxDelay time.Duration
	jitter            float64

	mu  sync.Mutex
	rng *rand.Rand
}

func newJitteredBackoff(initial, maxDelay time.Duration, jitter float64) *jitteredBackoff {
	return &jitteredBackoff{
		initial:  initial,
		maxDelay: maxDelay,
		jitter:   clamp(jitter, 0, 1),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter needs no crypto rand
	}
}

func (b *jitteredBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt < 0 {
		return 0
	}
	base := exponentialDelay(attempt, b.initial, b.maxDelay)

	b.mu.Lock()
	factor := 1 + (b.rng.Float64()*2-1)*b.jitter
	b.mu.Unlock()

	return clamp(time.Duration(float64(base)*factor), 0, b.maxDelay)
}

// decorrelatedBackoff draws each delay uniformly from [initial, 3*previous],
// capped at max. The first retry always waits initial.
type decorrelatedBackoff struct {
	initial, maxDelay time.Duration

	mu   sync.Mutex
	prev time.Duration
	rng  *rand.Rand
}

func newDecorrelatedBackoff(initial, maxDelay time.Duration) *decorrelatedBackoff {
	return &decorrelatedBackoff{
		initial:  initial,
		maxDelay: maxDelay,
		prev:     initial,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter needs no crypto rand
	}
}

func (b *decorrelatedBackoff) NextDelay(attempt int, _ error) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if attempt <= 0 {
		b.prev = b.initial
		return b.initial
	}

	upper := min(3*b.prev, b.maxDelay)
	span := upper - b.initial
	if span <= 0 {
		b.prev = b.initial
		return b.initial
	}

	b.prev = b.initial + time.Duration(b.rng.Int63n(int64(span)))
	return b.prev
}

func exponentialDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	if attempt >= maxShift {
		return maxDelay
	}

	if initial > maxDelay>>uint(attempt) {
		return maxDelay
	}
	return initial << uint(attempt)
}

func clamp[N ~int64 | ~float64](v, lo, hi N) N {
	return min(max(v, lo), hi)
}
