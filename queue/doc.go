// Package queue provides a bounded, generic work queue that decouples
// producers, workers and consumers.
//
// The primary type is Queue[T, R]. Producers Submit payloads of type T, a
// Worker turns each payload into zero, one or many results of type R, and
// consumers Retrieve those results in the order they become available. A
// failing worker produces a single failure result that is returned as an
// error to exactly one consumer.
//
// # Basic Usage
//
//	ctx := context.Background()
//	q, err := queue.New[int, int](
//	    queue.WithWorkerFunc(func(ctx context.Context, n int) (int, error) {
//	        return n * 2, nil
//	    }),
//	    queue.WithLimit(16),
//	)
//	if err != nil {
//	    return err
//	}
//	defer q.Shutdown(ctx)
//
//	_ = q.Submit(ctx, 21)
//	v, err := q.Retrieve(ctx) // 42
//
// # Dispatch Policies
//
// The policy decides when a pending task is handed to its worker:
//
//   - AfterAdd: every Submit claims the pending head immediately
//   - CycleOne: one dispatcher claims at most one task per interval
//   - CycleMany: WithGroupSize(n) dispatchers, each claiming at most one
//     task per interval
//
// Policies can also be chosen by name with WithPolicyName ("after-add",
// "async-cycle-one", "async-cycle-many").
//
// Claimed tasks run on their own goroutine by default, so invocations may
// overlap and results may leave the queue out of submission order.
// WithConcurrency(n) runs them on n runners instead; with a single runner
// results keep submission order.
//
// # Backpressure
//
// WithLimit(n) caps the items held by the queue: pending tasks, running
// tasks and buffered results all count. Submit blocks while the queue is
// full and blocked producers are admitted in arrival order as consumers free
// capacity. A task that fans out into k results occupies k slots until they
// are retrieved.
//
// # Workers
//
// Any type implementing Worker can be used. Adapters cover the common shapes:
//
//   - WorkerFunc: one value per payload
//   - FanOutFunc: a slice per payload, one result per element
//   - AsyncFunc: work completed elsewhere and reported on a channel
//
// A worker given to Submit overrides the queue's default for that payload.
//
// # Retries and Rate Limiting
//
//	q, err := queue.New[string, Response](
//	    queue.WithWorker[string, Response](client),
//	    queue.WithRetryPolicy(3, 100*time.Millisecond), // 3 attempts
//	    queue.WithBackoff(queue.BackoffJittered, 100*time.Millisecond, 2*time.Second, 0.2),
//	    queue.WithRateLimit(5.0, 10), // 5 invocations/sec, burst of 10
//	)
//
// # Shutdown
//
// Shutdown stops dispatch, lets claimed tasks finish within the deadline of
// its context and leaves buffered results retrievable. Payloads that were
// never dispatched are returned by Stranded.
//
// # Observability
//
// Lifecycle events and task failures go to the slog.Logger given with
// WithLogger. Durations, outcomes and store sizes are reported through the
// OpenTelemetry metric API (WithMeter) and every invocation runs in a span
// (WithTracer). Both default to the global providers.
package queue
