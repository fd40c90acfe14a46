package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingWorker is returned by Submit when neither the call nor the
	// queue supplies a worker, and is recorded as a task failure if a task
	// somehow reaches dispatch without one.
	ErrMissingWorker = errors.New("worker is not provided")

	// ErrQueueClosed is returned by Submit after Shutdown, and by Retrieve
	// once the queue is shut down and nothing is left to deliver.
	ErrQueueClosed = errors.New("queue is shut down")

	// ErrInvalidConfig wraps every construction-time validation failure.
	ErrInvalidConfig = errors.New("invalid queue configuration")

	// ErrShutdownTimeout is returned by Shutdown when in-flight invocations
	// did not finish before its context ended. Their contexts are cancelled.
	ErrShutdownTimeout = errors.New("error in shutting down: timeout reached")

	// ErrWorkerPanic marks a failure produced by a recovered worker panic.
	ErrWorkerPanic = errors.New("worker panic")
)

// TaskError is the failure delivered to the consumer that retrieves a failed
// task's result. It unwraps to the worker's own error.
type TaskError struct {
	TaskID int64
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
