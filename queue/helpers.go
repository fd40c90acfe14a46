package queue

import "context"

// waitUntil blocks until done is closed or ctx ends. It returns
// ErrShutdownTimeout in the second case.
func waitUntil(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	default:
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}
