package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xsubject/async-task-dispatcher/internal/algorithms"
)

const (
	// DefaultInterval is the tick period of periodic dispatchers.
	DefaultInterval = 100 * time.Millisecond

	// Instrumentation scope of queue metrics and spans.
	meterName  = "github.com/xsubject/async-task-dispatcher/queue"
	tracerName = meterName
)

// BackoffType selects how retry delays grow.
type BackoffType = algorithms.BackoffType

const (
	BackoffExponential  = algorithms.BackoffExponential
	BackoffJittered     = algorithms.BackoffJittered
	BackoffDecorrelated = algorithms.BackoffDecorrelated
)

// Option configures a Queue. Options are applied once by New and validated
// there; the resulting configuration is immutable.
type Option func(*options)

// options is the untyped option sink. Values that depend on the queue's type
// parameters are stored as any and checked by New.
type options struct {
	worker      any
	limit       int
	policy      Policy
	interval    time.Duration
	groupSize   int
	concurrency int

	rateLimiter *rate.Limiter

	maxAttempts         int
	retrySet            bool
	backoffType         BackoffType
	backoffInitialDelay time.Duration
	backoffMaxDelay     time.Duration
	backoffJitterFactor float64

	beforeTaskStart any
	onTaskEnd       any
	onRetry         any

	logger   *slog.Logger
	meter    metric.Meter
	tracer   trace.Tracer
	affinity bool

	errs []error
}

func (o *options) fail(format string, args ...any) {
	o.errs = append(o.errs, fmt.Errorf(format, args...))
}

// WithWorker sets the default worker used for tasks submitted without an
// override.
func WithWorker[T, R any](w Worker[T, R]) Option {
	return func(o *options) {
		if w == nil {
			o.fail("WithWorker: nil worker")
			return
		}
		o.worker = w
	}
}

// WithWorkerFunc is WithWorker for a plain single-result function.
func WithWorkerFunc[T, R any](fn func(ctx context.Context, payload T) (R, error)) Option {
	if fn == nil {
		return WithWorker[T, R](nil)
	}
	return WithWorker[T, R](WorkerFunc[T, R](fn))
}

// WithLimit bounds the number of items the queue holds at once, counting
// pending, in-flight and buffered items. Submit blocks while the queue is
// full. Without a limit the queue is unbounded.
func WithLimit(n int) Option {
	return func(o *options) {
		if n <= 0 {
			o.fail("WithLimit: limit must be > 0, got %d", n)
			return
		}
		o.limit = n
	}
}

// WithPolicy selects the dispatch policy. The default is AfterAdd.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithPolicyName selects the dispatch policy by name, see ParsePolicy.
func WithPolicyName(name string) Option {
	return func(o *options) {
		p, err := ParsePolicy(name)
		if err != nil {
			o.errs = append(o.errs, err)
			return
		}
		o.policy = p
	}
}

// WithInterval sets the tick period of periodic dispatchers
// (default DefaultInterval). Ignored by AfterAdd.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			o.fail("WithInterval: interval must be > 0, got %v", d)
			return
		}
		o.interval = d
	}
}

// WithGroupSize sets the number of periodic dispatchers run by CycleMany.
func WithGroupSize(n int) Option {
	return func(o *options) {
		if n <= 0 {
			o.fail("WithGroupSize: group size must be > 0, got %d", n)
			return
		}
		o.groupSize = n
	}
}

// WithConcurrency runs claimed tasks on n long-lived runners instead of one
// goroutine per task. Runners take tasks in claim order, so with n == 1
// results arrive in submission order under every policy.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n <= 0 {
			o.fail("WithConcurrency: concurrency must be > 0, got %d", n)
			return
		}
		o.concurrency = n
	}
}

// WithRateLimit caps how fast claimed tasks start their worker invocation.
// tasksPerSecond is the sustained rate, burst the bucket size.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 invocations/sec, bursts of 5
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(o *options) {
		if tasksPerSecond <= 0 || burst <= 0 {
			o.fail("WithRateLimit: rate and burst must be > 0, got %v/%d", tasksPerSecond, burst)
			return
		}
		o.rateLimiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
	}
}

// WithRetryPolicy retries a failing worker invocation up to maxAttempts
// times in total, waiting initialDelay before the first retry and growing the
// delay with the configured backoff. Only the last failure is delivered.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			o.backoffInitialDelay = initialDelay
			o.retrySet = true
		}
	}
}

// WithBackoff picks the backoff algorithm used between retries.
func WithBackoff(backoffType BackoffType, initialDelay, maxDelay time.Duration, jitterFactor float64) Option {
	return func(o *options) {
		o.backoffType = backoffType
		if initialDelay > 0 {
			o.backoffInitialDelay = initialDelay
		}
		if maxDelay > 0 {
			o.backoffMaxDelay = maxDelay
		}
		if jitterFactor >= 0 {
			o.backoffJitterFactor = jitterFactor
		}
	}
}

// WithBeforeTaskStart registers a hook called before each worker invocation.
func WithBeforeTaskStart[T any](fn func(payload T)) Option {
	return func(o *options) { o.beforeTaskStart = fn }
}

// WithOnTaskEnd registers a hook called after each task finishes, with the
// values it produced or its final error.
func WithOnTaskEnd[T, R any](fn func(payload T, results []R, err error)) Option {
	return func(o *options) { o.onTaskEnd = fn }
}

// WithOnEachAttempt registers a hook called after every failed attempt that
// will be retried.
func WithOnEachAttempt[T any](fn func(payload T, attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// WithLogger sets the structured logger for lifecycle events and task
// failures. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter sets the OpenTelemetry meter for queue metrics. The default is
// the global MeterProvider's meter, which is a no-op unless one is installed.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithTracer sets the OpenTelemetry tracer that wraps every worker invocation
// in a span. The default is the global TracerProvider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithDispatcherAffinity locks every periodic dispatcher and runner to its
// own OS thread and, where supported, pins that thread to a CPU.
func WithDispatcherAffinity() Option {
	return func(o *options) { o.affinity = true }
}

// queueConfig is the validated, typed configuration of one queue.
type queueConfig[T, R any] struct {
	worker      Worker[T, R]
	limit       int
	policy      Policy
	interval    time.Duration
	groupSize   int
	concurrency int

	rateLimiter *rate.Limiter
	maxAttempts int
	backoff     algorithms.BackoffStrategy

	beforeTaskStart func(T)
	onTaskEnd       func(T, []R, error)
	onRetry         func(T, int, error)

	logger   *slog.Logger
	meter    metric.Meter
	tracer   trace.Tracer
	affinity bool
}

// dispatchers returns how many periodic dispatchers the policy runs.
func (c *queueConfig[T, R]) dispatchers() int {
	switch c.policy {
	case CycleOne:
		return 1
	case CycleMany:
		return c.groupSize
	default:
		return 0
	}
}

func createConfig[T, R any](opts ...Option) (*queueConfig[T, R], error) {
	o := &options{
		policy:              AfterAdd,
		interval:            DefaultInterval,
		maxAttempts:         1,
		backoffType:         BackoffExponential,
		backoffInitialDelay: 100 * time.Millisecond,
		backoffMaxDelay:     5 * time.Second,
		backoffJitterFactor: 0.1,
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := &queueConfig[T, R]{
		limit:       o.limit,
		policy:      o.policy,
		interval:    o.interval,
		groupSize:   o.groupSize,
		concurrency: o.concurrency,
		rateLimiter: o.rateLimiter,
		maxAttempts: o.maxAttempts,
		logger:      o.logger,
		meter:       o.meter,
		tracer:      o.tracer,
		affinity:    o.affinity,
	}

	errs := o.errs
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if o.worker != nil {
		w, ok := o.worker.(Worker[T, R])
		check(ok, "worker type %T does not process %s", o.worker, typeSig[T, R]())
		cfg.worker = w
	}
	if o.beforeTaskStart != nil {
		fn, ok := o.beforeTaskStart.(func(T))
		check(ok, "WithBeforeTaskStart hook %T does not match task type %s", o.beforeTaskStart, typeName[T]())
		cfg.beforeTaskStart = fn
	}
	if o.onTaskEnd != nil {
		fn, ok := o.onTaskEnd.(func(T, []R, error))
		check(ok, "WithOnTaskEnd hook %T does not match %s", o.onTaskEnd, typeSig[T, R]())
		cfg.onTaskEnd = fn
	}
	if o.onRetry != nil {
		fn, ok := o.onRetry.(func(T, int, error))
		check(ok, "WithOnEachAttempt hook %T does not match task type %s", o.onRetry, typeName[T]())
		cfg.onRetry = fn
	}

	_, known := policyNames[o.policy]
	check(known, "unknown work policy %d", int(o.policy))
	check(o.policy != CycleMany || o.groupSize > 0, "%s requires WithGroupSize", CycleMany)

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	if o.retrySet || cfg.maxAttempts > 1 {
		cfg.backoff = algorithms.NewBackoffStrategy(
			o.backoffType,
			o.backoffInitialDelay,
			o.backoffMaxDelay,
			o.backoffJitterFactor,
		)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter(meterName)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	return cfg, nil
}

func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

func typeSig[T, R any]() string {
	return fmt.Sprintf("%s -> %s", typeName[T](), typeName[R]())
}
