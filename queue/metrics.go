package queue

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// queueMetrics holds the OTel instruments of one queue.
//
// Instruments:
//   - queue.task.duration (Float64Histogram): worker time in seconds, with
//     attributes policy and status ("ok", "error" or "panic")
//   - queue.task.executions (Int64Counter): finished tasks, same attributes
//   - queue.results (Int64Counter): results pushed to the buffer
//   - queue.pending, queue.in_flight, queue.buffered (Int64ObservableGauge):
//     current store sizes, observed on collection
type queueMetrics struct {
	duration   metric.Float64Histogram
	executions metric.Int64Counter
	results    metric.Int64Counter

	policy attribute.KeyValue
	reg    metric.Registration
}

func newQueueMetrics[T, R any](q *Queue[T, R]) (*queueMetrics, error) {
	meter := q.conf.meter
	m := &queueMetrics{policy: attribute.String("policy", q.conf.policy.String())}

	var err error
	if m.duration, err = meter.Float64Histogram(
		"queue.task.duration",
		metric.WithDescription("Duration of worker invocations in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.executions, err = meter.Int64Counter(
		"queue.task.executions",
		metric.WithDescription("Total number of finished tasks"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, err
	}
	if m.results, err = meter.Int64Counter(
		"queue.results",
		metric.WithDescription("Total number of results made available to consumers"),
		metric.WithUnit("{result}"),
	); err != nil {
		return nil, err
	}

	pending, err := meter.Int64ObservableGauge("queue.pending",
		metric.WithDescription("Tasks waiting for dispatch"), metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64ObservableGauge("queue.in_flight",
		metric.WithDescription("Tasks whose worker is running"), metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}
	buffered, err := meter.Int64ObservableGauge("queue.buffered",
		metric.WithDescription("Results waiting for a consumer"), metric.WithUnit("{result}"))
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(m.policy)
	m.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(pending, int64(q.Pending()), attrs)
		o.ObserveInt64(inFlight, int64(q.InFlight()), attrs)
		o.ObserveInt64(buffered, int64(q.Buffered()), attrs)
		return nil
	}, pending, inFlight, buffered)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *queueMetrics) record(elapsed time.Duration, results int, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(m.policy, attribute.String("status", status(err)))

	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	m.executions.Add(ctx, 1, attrs)
	if results > 0 {
		m.results.Add(ctx, int64(results), metric.WithAttributes(m.policy))
	}
}

// unregister stops the gauge callback so a shut down queue can be collected.
func (m *queueMetrics) unregister() {
	if m.reg != nil {
		_ = m.reg.Unregister()
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrWorkerPanic):
		return "panic"
	default:
		return "error"
	}
}

// startSpan opens the span covering one task's worker invocation.
func startSpan(ctx context.Context, tracer trace.Tracer, policy Policy, taskID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "queue.task.execute",
		trace.WithAttributes(
			attribute.Int64("queue.task.id", taskID),
			attribute.String("queue.policy", policy.String()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func endSpan[R any](span trace.Span, attempts int, out Outcome[R], err error) {
	span.SetAttributes(attribute.Int("queue.task.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Bool("queue.task.fan_out", out.IsMany()),
			attribute.Int("queue.task.results", out.Len()),
		)
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
