package queue

import (
	"context"
	"slices"
	"testing"
	"time"
)

// policyConfig defines a test configuration for a dispatch policy
type policyConfig struct {
	name string
	opts []Option
}

// getAllPolicies returns every dispatch policy with a short tick interval so
// periodic policies finish quickly.
func getAllPolicies(additionalOpts ...Option) []policyConfig {
	policies := []policyConfig{
		{
			name: "AfterAdd",
			opts: []Option{WithPolicy(AfterAdd)},
		},
		{
			name: "CycleOne",
			opts: []Option{WithPolicy(CycleOne), WithInterval(time.Millisecond)},
		},
		{
			name: "CycleMany",
			opts: []Option{WithPolicy(CycleMany), WithGroupSize(3), WithInterval(time.Millisecond)},
		},
	}
	for i := range policies {
		policies[i].opts = append(policies[i].opts, additionalOpts...)
	}
	return policies
}

func runPolicyTest(t *testing.T, testFunc func(t *testing.T, p policyConfig), additionalOpts ...Option) {
	for _, p := range getAllPolicies(additionalOpts...) {
		t.Run(p.name, func(t *testing.T) {
			testFunc(t, p)
		})
	}
}

// newTestQueue builds a queue and shuts it down when the test ends.
func newTestQueue[T, R any](t *testing.T, opts ...Option) *Queue[T, R] {
	t.Helper()
	q, err := New[T, R](opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func double(_ context.Context, n int) (int, error) {
	return n * 2, nil
}

func sorted(xs []int) []int {
	out := slices.Clone(xs)
	slices.Sort(out)
	return out
}
