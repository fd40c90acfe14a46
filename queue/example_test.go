package queue_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xsubject/async-task-dispatcher/queue"
)

func Example() {
	ctx := context.Background()
	q, err := queue.New[string, string](
		queue.WithWorkerFunc(func(_ context.Context, s string) (string, error) {
			return strings.ToUpper(s), nil
		}),
		queue.WithConcurrency(1),
	)
	if err != nil {
		panic(err)
	}
	defer q.Shutdown(ctx)

	_ = q.SubmitMany(ctx, []string{"a", "b", "c"})
	out, _ := q.RetrieveMany(ctx, 3)
	fmt.Println(out)
	// Output: [A B C]
}

func ExampleFanOutFunc() {
	ctx := context.Background()
	q, err := queue.New[string, string](
		queue.WithWorker[string, string](queue.FanOutFunc[string, string](func(_ context.Context, s string) ([]string, error) {
			return strings.Fields(s), nil
		})),
	)
	if err != nil {
		panic(err)
	}
	defer q.Shutdown(ctx)

	_ = q.Submit(ctx, "one two three")
	words, _ := q.RetrieveMany(ctx, 3)
	fmt.Println(words)
	// Output: [one two three]
}

// TestHooksWithOverride checks that hooks fire for tasks processed by a
// per-submit worker as well as the default one.
func TestHooksWithOverride(t *testing.T) {
	var mu sync.Mutex
	events := []string{}

	q, err := queue.New[int, string](
		queue.WithWorkerFunc(func(_ context.Context, n int) (string, error) {
			return fmt.Sprintf("default-%d", n), nil
		}),
		queue.WithBeforeTaskStart(func(n int) {
			mu.Lock()
			events = append(events, fmt.Sprintf("start:%d", n))
			mu.Unlock()
		}),
		queue.WithOnTaskEnd(func(n int, rs []string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				events = append(events, fmt.Sprintf("end:%d:error", n))
				return
			}
			events = append(events, fmt.Sprintf("end:%d:%s", n, strings.Join(rs, "+")))
		}),
		queue.WithConcurrency(1),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer q.Shutdown(ctx)

	override := queue.WorkerFunc[int, string](func(_ context.Context, n int) (string, error) {
		if n < 0 {
			return "", errors.New("negative")
		}
		return fmt.Sprintf("override-%d", n), nil
	})

	if err := q.Submit(ctx, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Submit(ctx, 2, override); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Submit(ctx, -3, override); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := q.RetrieveMany(ctx, 2)
	if err != nil {
		t.Fatalf("RetrieveMany: %v", err)
	}
	if want := []string{"default-1", "override-2"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	_, err = q.Retrieve(ctx)
	var te *queue.TaskError
	if !errors.As(err, &te) || te.TaskID != 3 {
		t.Fatalf("expected TaskError for task 3, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"start:1", "end:1:default-1", "start:2", "end:2:override-2", "start:-3", "end:-3:error"}
	if !slices.Equal(events, want) {
		t.Errorf("expected events %v, got %v", want, events)
	}
}
