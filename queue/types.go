package queue

import (
	"context"
	"errors"
)

// ErrNoCompletion is the failure recorded when an AsyncFunc closes its
// completion channel without sending a value.
var ErrNoCompletion = errors.New("async worker finished without a completion")

// Outcome is what a worker produced for one payload: either a single value or
// a sequence that fans out into one result per element.
//
// The zero Outcome is an empty sequence and yields no results.
type Outcome[R any] struct {
	values []R
	many   bool
}

// Single wraps one result value.
func Single[R any](v R) Outcome[R] {
	return Outcome[R]{values: []R{v}}
}

// Many wraps a sequence of result values. Each element becomes an
// independently retrievable result, in order. An empty sequence yields none.
func Many[R any](vs ...R) Outcome[R] {
	return Outcome[R]{values: vs, many: true}
}

// Values returns the produced values in order.
func (o Outcome[R]) Values() []R { return o.values }

// IsMany reports whether the outcome was built with Many.
func (o Outcome[R]) IsMany() bool { return o.many }

// Len returns how many results the outcome fans out into.
func (o Outcome[R]) Len() int { return len(o.values) }

// Worker transforms one payload into an Outcome.
//
// Work is invoked by the dispatcher on its own goroutine; implementations
// must be safe for concurrent use when the queue's policy allows overlapping
// invocations. A returned error, or a panic, becomes a single failure result
// for that payload.
type Worker[T, R any] interface {
	Work(ctx context.Context, payload T) (Outcome[R], error)
}

// WorkerFunc adapts a function returning one value to the Worker interface.
type WorkerFunc[T, R any] func(ctx context.Context, payload T) (R, error)

// Work implements Worker.
func (f WorkerFunc[T, R]) Work(ctx context.Context, payload T) (Outcome[R], error) {
	v, err := f(ctx, payload)
	if err != nil {
		return Outcome[R]{}, err
	}
	return Single(v), nil
}

// FanOutFunc adapts a function returning a slice to the Worker interface.
// Every element of the slice becomes its own result.
type FanOutFunc[T, R any] func(ctx context.Context, payload T) ([]R, error)

// Work implements Worker.
func (f FanOutFunc[T, R]) Work(ctx context.Context, payload T) (Outcome[R], error) {
	vs, err := f(ctx, payload)
	if err != nil {
		return Outcome[R]{}, err
	}
	return Many(vs...), nil
}

// Completion is the eventual value of an asynchronous worker.
type Completion[R any] struct {
	Outcome Outcome[R]
	Err     error
}

// AsyncFunc adapts a function that starts work elsewhere and reports back on
// a channel. The dispatcher waits for the first value on the channel, so
// synchronous and asynchronous workers look the same to the queue. A nil
// channel fails with ErrNoCompletion.
type AsyncFunc[T, R any] func(ctx context.Context, payload T) <-chan Completion[R]

// Work implements Worker.
func (f AsyncFunc[T, R]) Work(ctx context.Context, payload T) (Outcome[R], error) {
	ch := f(ctx, payload)
	if ch == nil {
		return Outcome[R]{}, ErrNoCompletion
	}

	select {
	case c, ok := <-ch:
		if !ok {
			return Outcome[R]{}, ErrNoCompletion
		}
		return c.Outcome, c.Err
	case <-ctx.Done():
		return Outcome[R]{}, ctx.Err()
	}
}

// Result is one entry of the result buffer: a produced value or the failure
// of the task it came from.
type Result[R any] struct {
	Value  R
	Err    error
	TaskID int64
}

// task is a submitted payload awaiting dispatch. worker is nil when the
// queue's default worker applies.
type task[T, R any] struct {
	id      int64
	payload T
	worker  Worker[T, R]
}
