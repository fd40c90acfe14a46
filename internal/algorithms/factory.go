package algorithms

import "time"

// BackoffType selects a BackoffStrategy implementation.
type BackoffType int

const (
	// BackoffExponential doubles the delay on every retry (default).
	BackoffExponential BackoffType = iota
	// BackoffJittered spreads the exponential delay by a random factor.
	BackoffJittered
	// BackoffDecorrelated draws each delay from [initial, 3*previous].
	BackoffDecorrelated
)

func (b BackoffType) String() string {
	switch b {
	case BackoffJittered:
		return "jittered"
	case BackoffDecorrelated:
		return "decorrelated"
	default:
		return "exponential"
	}
}

// NewBackoffStrategy builds the strategy named by backoffType.
func NewBackoffStrategy(
	backoffType BackoffType,
	initialDelay, maxDelay time.Duration,
	jitterFactor float64,
) BackoffStrategy {
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}

	switch backoffType {
	case BackoffJittered:
		return newJitteredBackoff(initialDelay, maxDelay, jitterFactor)
	case BackoffDecorrelated:
		return newDecorrelatedBackoff(initialDelay, maxDelay)
	default:
		return newExponentialBackoff(initialDelay, maxDelay)
	}
}
