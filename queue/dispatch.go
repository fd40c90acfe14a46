package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/xsubject/async-task-dispatcher/internal/cpu"
)

// cycle is the loop of one periodic dispatcher. Every tick claims at most one
// task; the claim never waits for the invocation it starts.
func (q *Queue[T, R]) cycle(ctx context.Context, slot int) error {
	release := q.pin(slot)
	defer release()

	ticker := time.NewTicker(q.conf.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.lifeMu.RLock()
			q.dispatch()
			q.lifeMu.RUnlock()
		}
	}
}

// runner executes claimed tasks one at a time, in claim order. Once ctx ends
// it finishes whatever was claimed before returning.
func (q *Queue[T, R]) runner(ctx context.Context, slot int) error {
	release := q.pin(slot)
	defer release()

	for {
		t, ok, wait := q.runq.PopOrWait()
		if ok {
			q.runClaimed(t)
			continue
		}

		select {
		case <-wait:
		case <-ctx.Done():
			// Claims stop before ctx ends, so this drain sees them all.
			for {
				t, ok := q.runq.Pop()
				if !ok {
					return nil
				}
				q.runClaimed(t)
			}
		}
	}
}

func (q *Queue[T, R]) pin(slot int) func() {
	if !q.conf.affinity {
		return func() {}
	}
	release, err := cpu.Pin(slot)
	if err != nil {
		q.logger.Debug("affinity not applied",
			slog.Int("slot", slot),
			slog.String("error", err.Error()),
		)
	}
	return release
}

// dispatch claims the head of the pending store, if any, and starts its
// invocation. It must be called with lifeMu read-locked and claims nothing
// once the queue is closed.
//
// The pop, the in-flight count and the hand-off to the runners happen in one
// critical section of the pending store, so no task is claimed twice and
// runners see tasks in claim order.
func (q *Queue[T, R]) dispatch() {
	if q.closed {
		return
	}

	t, ok := q.pending.PopWith(func(t *task[T, R]) {
		q.inFlight.Add(1)
		q.active.Add(1)
		if q.runq != nil {
			q.runq.Push(t)
		}
	})
	if ok && q.runq == nil {
		go q.runClaimed(t)
	}
}

func (q *Queue[T, R]) runClaimed(t *task[T, R]) {
	defer q.active.Done()
	q.run(t)
}

// run invokes the worker for a claimed task and moves its results into the
// buffer, waking consumers.
func (q *Queue[T, R]) run(t *task[T, R]) {
	start := time.Now()
	values, err := q.execute(t)
	elapsed := time.Since(start)

	var results []Result[R]
	if err != nil {
		err = &TaskError{TaskID: t.id, Err: err}
		results = []Result[R]{{Err: err, TaskID: t.id}}
		q.failed.Add(1)
		q.logger.Debug("task failed",
			slog.Int64("task_id", t.id),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	} else {
		results = make([]Result[R], len(values))
		for i, v := range values {
			results[i] = Result[R]{Value: v, TaskID: t.id}
		}
		q.completed.Add(1)
	}

	q.metrics.record(elapsed, len(results), err)

	// The task entered holding one slot. Extra fan-out results are charged
	// before they become visible so a fast consumer cannot release them to
	// waiting producers early.
	if n := len(results); n > 1 {
		q.gate.Charge(n - 1)
	}

	q.buffer.PushWith(results, func() {
		q.inFlight.Add(-1)
	})

	if len(results) == 0 {
		q.gate.Release()
	}

	debugLog("task %d done: results=%d err=%v elapsed=%v", t.id, len(results), err, elapsed)
}

// execute resolves the worker and runs it with rate limiting, hooks, retry
// and panic recovery.
func (q *Queue[T, R]) execute(t *task[T, R]) ([]R, error) {
	w := t.worker
	if w == nil {
		w = q.conf.worker
	}
	if w == nil {
		return nil, ErrMissingWorker
	}

	ctx := q.runCtx
	if q.conf.rateLimiter != nil {
		if err := q.conf.rateLimiter.Wait(ctx); err != nil {
			// Rate limiter's error doesn't wrap context errors, so check context explicitly
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
	}

	if q.conf.beforeTaskStart != nil {
		q.conf.beforeTaskStart(t.payload)
	}

	ctx, span := startSpan(ctx, q.conf.tracer, q.conf.policy, t.id)
	var attempts int
	out, err := q.processWithRecovery(ctx, t.payload, w, &attempts)
	endSpan(span, attempts, out, err)

	var values []R
	if err == nil {
		values = out.Values()
	}
	if q.conf.onTaskEnd != nil {
		q.conf.onTaskEnd(t.payload, values, err)
	}
	return values, err
}

// processWithRecovery runs the worker with retries, converting a panic into
// an error so one task cannot take a dispatcher down.
func (q *Queue[T, R]) processWithRecovery(ctx context.Context, payload T, w Worker[T, R], attempts *int) (out Outcome[R], err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("%w: %v\nstack trace:\n%s", ErrWorkerPanic, r, buf[:n])
			q.logger.Warn("worker panicked", slog.Any("panic", r))
		}
	}()

	return q.processWithRetry(ctx, payload, w, attempts)
}

// processWithRetry calls the worker up to maxAttempts times, sleeping the
// backoff delay between attempts. The onRetry hook fires for every failure
// that is followed by another attempt. attempts counts the calls made.
func (q *Queue[T, R]) processWithRetry(ctx context.Context, payload T, w Worker[T, R], attempts *int) (Outcome[R], error) {
	var out Outcome[R]
	var err error
	limit := max(q.conf.maxAttempts, 1)

	for attempt := range limit {
		if attempt > 0 && q.conf.backoff != nil {
			if delay := q.conf.backoff.NextDelay(attempt-1, err); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return out, ctx.Err()
				}
			}
		}

		*attempts++
		out, err = w.Work(ctx, payload)
		if err == nil {
			return out, nil
		}

		if q.conf.onRetry != nil && attempt < limit-1 {
			q.conf.onRetry(payload, attempt+1, err)
		}
	}

	return out, err
}
