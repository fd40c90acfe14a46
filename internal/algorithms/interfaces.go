package algorithms

import "time"

// BackoffStrategy computes the pause between attempts of a failed worker
// invocation. One strategy serves every task of a queue concurrently.
type BackoffStrategy interface {
	// NextDelay returns how long to wait before retry number attempt
	// (0 = first retry). lastErr is the error from the previous attempt.
	// Stateful strategies restart their sequence at attempt 0.
	NextDelay(attempt int, lastErr error) time.Duration
}
