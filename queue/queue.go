package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/xsubject/async-task-dispatcher/internal/gate"
	"github.com/xsubject/async-task-dispatcher/internal/store"
)

// Queue is a bounded, concurrent work queue. Producers Submit payloads,
// the configured Policy hands them to a Worker, and consumers Retrieve the
// results in the order they become available.
//
// Type parameters:
//   - T: The payload type accepted by Submit
//   - R: The result type delivered by Retrieve
//
// A Queue is safe for concurrent use by any number of producers and
// consumers. It must be created with New.
type Queue[T, R any] struct {
	conf *queueConfig[T, R]

	pending *store.FIFO[*task[T, R]]
	runq    *store.FIFO[*task[T, R]] // claimed tasks; nil without WithConcurrency
	buffer  *store.FIFO[Result[R]]
	gate    *gate.Gate

	// inFlight moves only inside the pending pop and the buffer push
	// critical sections, so Len never loses a task between the two.
	inFlight      atomic.Int64
	taskIDCounter atomic.Int64
	submitted     atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64

	// lifeMu orders claims against Shutdown: claims hold it for reading,
	// Shutdown takes it once for writing to flip closed.
	lifeMu   sync.RWMutex
	closed   bool
	shutdown atomic.Bool

	closeCtx  context.Context // done once Shutdown starts
	stop      context.CancelFunc
	runCtx    context.Context // passed to workers; cancelled on drain timeout
	cancelRun context.CancelFunc

	cycles errgroup.Group // periodic dispatchers and runners
	active sync.WaitGroup // claimed tasks not yet finished

	metrics *queueMetrics
	logger  *slog.Logger
}

// New creates a queue and, for periodic policies, starts its dispatchers.
//
// Example:
//
//	q, err := queue.New[int, string](
//	    queue.WithWorkerFunc(func(ctx context.Context, n int) (string, error) {
//	        return strconv.Itoa(n), nil
//	    }),
//	    queue.WithPolicy(queue.CycleMany),
//	    queue.WithGroupSize(4),
//	    queue.WithLimit(64),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Shutdown(context.Background())
func New[T, R any](opts ...Option) (*Queue[T, R], error) {
	cfg, err := createConfig[T, R](opts...)
	if err != nil {
		return nil, err
	}

	q := &Queue[T, R]{
		conf:    cfg,
		pending: store.New[*task[T, R]](0),
		buffer:  store.New[Result[R]](0),
		gate:    gate.New(cfg.limit),
		logger:  cfg.logger.With(slog.String("policy", cfg.policy.String())),
	}
	if cfg.concurrency > 0 {
		q.runq = store.New[*task[T, R]](0)
	}
	q.closeCtx, q.stop = context.WithCancel(context.Background())
	q.runCtx, q.cancelRun = context.WithCancel(context.Background())

	if q.metrics, err = newQueueMetrics(q); err != nil {
		q.stop()
		q.cancelRun()
		return nil, err
	}

	q.logger.Info("queue started",
		slog.Int("limit", cfg.limit),
		slog.Duration("interval", cfg.interval),
		slog.Int("dispatchers", cfg.dispatchers()),
		slog.Int("concurrency", cfg.concurrency),
	)

	for slot := range cfg.dispatchers() {
		q.cycles.Go(func() error {
			return q.cycle(q.closeCtx, slot)
		})
	}
	for i := range cfg.concurrency {
		slot := cfg.dispatchers() + i
		q.cycles.Go(func() error {
			return q.runner(q.closeCtx, slot)
		})
	}

	return q, nil
}

// Submit places item in the pending store.
//
// The task is processed by override[0] when given, otherwise by the queue's
// default worker; if neither exists Submit fails with ErrMissingWorker and
// leaves the queue untouched. When the queue is at its limit Submit blocks
// until a consumer frees capacity or ctx is done. Under AfterAdd it claims the
// pending head and starts its invocation without waiting for it.
func (q *Queue[T, R]) Submit(ctx context.Context, item T, override ...Worker[T, R]) error {
	var w Worker[T, R]
	if len(override) > 0 {
		w = override[0]
	}
	if w == nil && q.conf.worker == nil {
		return ErrMissingWorker
	}
	if q.shutdown.Load() {
		return ErrQueueClosed
	}

	if err := q.acquire(ctx); err != nil {
		return err
	}

	t := &task[T, R]{
		id:      q.taskIDCounter.Add(1),
		payload: item,
		worker:  w,
	}

	q.lifeMu.RLock()
	if q.closed {
		q.lifeMu.RUnlock()
		q.gate.Release()
		return ErrQueueClosed
	}
	q.pending.Push(t)
	q.submitted.Add(1)
	if q.conf.policy == AfterAdd {
		q.dispatch()
	}
	q.lifeMu.RUnlock()

	debugLog("submitted task %d (pending=%d)", t.id, q.pending.Len())
	return nil
}

// SubmitMany submits items one by one, in order. It is not atomic: other
// producers may interleave, and on the first error the remaining items are
// not submitted.
func (q *Queue[T, R]) SubmitMany(ctx context.Context, items []T, override ...Worker[T, R]) error {
	for _, item := range items {
		if err := q.Submit(ctx, item, override...); err != nil {
			return err
		}
	}
	return nil
}

// acquire takes a gate slot, giving up when ctx ends or the queue shuts down.
func (q *Queue[T, R]) acquire(ctx context.Context) error {
	if q.gate == nil {
		return nil
	}
	if q.gate.TryAcquire() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(q.closeCtx, cancel)
	defer stop()

	if err := q.gate.Acquire(ctx); err != nil {
		if q.shutdown.Load() {
			return ErrQueueClosed
		}
		return err
	}
	return nil
}

// Retrieve blocks until a result is buffered, removes it and returns it.
// A failed task's result is returned as the error, a *TaskError wrapping what
// the worker returned. Each result goes to exactly one caller.
//
// Retrieve returns ctx.Err() when ctx ends first, and ErrQueueClosed when the
// queue is shut down with nothing buffered or in flight.
func (q *Queue[T, R]) Retrieve(ctx context.Context) (R, error) {
	r, err := q.RetrieveResult(ctx)
	if err != nil {
		return r.Value, err
	}
	return r.Value, r.Err
}

// RetrieveResult is Retrieve returning the whole Result, including the id of
// the task it came from. The returned error only reports ctx or shutdown;
// task failures are in Result.Err.
func (q *Queue[T, R]) RetrieveResult(ctx context.Context) (Result[R], error) {
	for {
		// Read before the pop: in-flight only drops inside a buffer push, so
		// an idle queue whose pop still fails has nothing left to deliver.
		idle := q.shutdown.Load() && q.inFlight.Load() == 0

		r, ok, wait := q.buffer.PopOrWait()
		if ok {
			q.gate.Release()
			return r, nil
		}
		if idle {
			return Result[R]{}, ErrQueueClosed
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return Result[R]{}, ctx.Err()
		}
	}
}

// TryRetrieve is a non-blocking Retrieve. ok is false when nothing is
// buffered.
func (q *Queue[T, R]) TryRetrieve() (value R, ok bool, err error) {
	r, ok := q.buffer.Pop()
	if !ok {
		return value, false, nil
	}
	q.gate.Release()
	return r.Value, true, r.Err
}

// RetrieveMany calls Retrieve n times in sequence. Other consumers may
// interleave between the calls. It stops at the first error and returns the
// values gathered before it.
func (q *Queue[T, R]) RetrieveMany(ctx context.Context, n int) ([]R, error) {
	out := make([]R, 0, max(n, 0))
	for range n {
		v, err := q.Retrieve(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Shutdown stops all dispatch and waits for in-flight invocations to finish.
//
// Periodic dispatchers are cancelled and joined, the after-add trigger is
// disabled, and producers blocked in Submit return ErrQueueClosed. Tasks
// already claimed still run. Tasks still pending are never dispatched;
// Stranded hands them back. Buffered results stay retrievable.
//
// If ctx ends before in-flight invocations finish, their contexts are
// cancelled and Shutdown returns ErrShutdownTimeout. Calling Shutdown again is
// safe and waits for the same drain.
func (q *Queue[T, R]) Shutdown(ctx context.Context) error {
	q.lifeMu.Lock()
	first := !q.closed
	q.closed = true
	q.lifeMu.Unlock()

	if first {
		q.shutdown.Store(true)
		q.stop()
		q.logger.Info("queue shutting down",
			slog.Int("pending", q.Pending()),
			slog.Int64("in_flight", q.inFlight.Load()),
			slog.Int("buffered", q.Buffered()),
		)
	}

	done := make(chan struct{})
	go func() {
		_ = q.cycles.Wait()
		q.active.Wait()
		close(done)
	}()

	err := waitUntil(ctx, done)
	if err != nil {
		q.cancelRun()
		q.logger.Warn("shutdown timed out, cancelled in-flight invocations",
			slog.Int64("in_flight", q.inFlight.Load()),
		)
	}

	if first {
		q.metrics.unregister()
	}
	// Consumers parked on an empty buffer re-check the shutdown state.
	q.buffer.Notify()
	return err
}

// Stranded removes and returns the payloads left pending by Shutdown, freeing
// their capacity. Before Shutdown it returns nil.
func (q *Queue[T, R]) Stranded() []T {
	if !q.shutdown.Load() {
		return nil
	}
	tasks := q.pending.Drain()
	out := make([]T, len(tasks))
	for i, t := range tasks {
		out[i] = t.payload
		q.gate.Release()
	}
	return out
}

// Len returns pending + in-flight + buffered items. Like every counter here it
// is a point-in-time snapshot.
func (q *Queue[T, R]) Len() int {
	return q.Pending() + q.InFlight() + q.Buffered()
}

// Pending returns the number of tasks waiting for dispatch.
func (q *Queue[T, R]) Pending() int { return q.pending.Len() }

// Buffered returns the number of results waiting for a consumer.
func (q *Queue[T, R]) Buffered() int { return q.buffer.Len() }

// InFlight returns the number of tasks whose worker invocation is running.
func (q *Queue[T, R]) InFlight() int { return int(q.inFlight.Load()) }

// IsShutdown reports whether Shutdown has been called.
func (q *Queue[T, R]) IsShutdown() bool { return q.shutdown.Load() }

// Policy returns the queue's dispatch policy.
func (q *Queue[T, R]) Policy() Policy { return q.conf.policy }

// Limit returns the configured capacity, 0 when unbounded.
func (q *Queue[T, R]) Limit() int { return q.conf.limit }

// Stats is a point-in-time view of a queue's counters.
type Stats struct {
	Policy   Policy
	Limit    int
	Pending  int
	InFlight int
	Buffered int
	// Submitted, Completed and Failed count tasks over the queue's lifetime.
	Submitted int64
	Completed int64
	Failed    int64
	Shutdown  bool
}

// Len is Pending + InFlight + Buffered.
func (s Stats) Len() int { return s.Pending + s.InFlight + s.Buffered }

// Stats returns a snapshot of the queue's counters. The fields are read one
// after another, not as a transaction.
func (q *Queue[T, R]) Stats() Stats {
	return Stats{
		Policy:    q.conf.policy,
		Limit:     q.conf.limit,
		Pending:   q.Pending(),
		InFlight:  q.InFlight(),
		Buffered:  q.Buffered(),
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Shutdown:  q.shutdown.Load(),
	}
}
