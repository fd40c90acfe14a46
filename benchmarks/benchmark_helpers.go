package benchmarks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xsubject/async-task-dispatcher/queue"
)

// policyConfig defines a benchmark configuration for a dispatch policy
type policyConfig struct {
	name string
	opts []queue.Option
}

// getAllPolicies returns every dispatch policy. Periodic policies tick as
// fast as the runtime timer allows so they measure claim overhead rather than
// the interval.
func getAllPolicies(groupSize int) []policyConfig {
	return []policyConfig{
		{
			name: "AfterAdd",
			opts: []queue.Option{queue.WithPolicy(queue.AfterAdd)},
		},
		{
			name: "AfterAdd_Runners",
			opts: []queue.Option{queue.WithPolicy(queue.AfterAdd), queue.WithConcurrency(groupSize)},
		},
		{
			name: "CycleOne",
			opts: []queue.Option{queue.WithPolicy(queue.CycleOne), queue.WithInterval(time.Microsecond)},
		},
		{
			name: "CycleMany",
			opts: []queue.Option{
				queue.WithPolicy(queue.CycleMany),
				queue.WithGroupSize(groupSize),
				queue.WithInterval(time.Microsecond),
			},
		},
	}
}

// getBoundedPolicies returns every policy with a capacity limit applied.
func getBoundedPolicies(groupSize, limit int) []policyConfig {
	policies := getAllPolicies(groupSize)
	for i := range policies {
		policies[i].opts = append(policies[i].opts, queue.WithLimit(limit))
	}
	return policies
}

// pump submits taskCount payloads from producers goroutines while one
// consumer drains the results. It returns once every result was retrieved.
func pump[R any](b *testing.B, q *queue.Queue[int, R], producers, taskCount int) {
	b.Helper()
	ctx := context.Background()

	var wg sync.WaitGroup
	per := taskCount / producers
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range per {
				if err := q.Submit(ctx, p*per+i); err != nil {
					b.Error(err)
					return
				}
			}
		}()
	}

	for range per * producers {
		if _, err := q.Retrieve(ctx); err != nil {
			b.Fatal(err)
		}
	}
	wg.Wait()
}

func newQueue[R any](b *testing.B, opts ...queue.Option) *queue.Queue[int, R] {
	b.Helper()
	q, err := queue.New[int, R](opts...)
	if err != nil {
		b.Fatal(err)
	}
	return q
}

func shutdown[R any](q *queue.Queue[int, R]) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = q.Shutdown(ctx)
}

func reportThroughput(b *testing.B, taskCount int) {
	nsPerOp := float64(b.Elapsed().Nanoseconds()) / float64(b.N)
	b.ReportMetric(float64(taskCount)/nsPerOp*1e9, "tasks/sec")
}
