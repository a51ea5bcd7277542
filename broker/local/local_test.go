package local_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/romanqed/qjazz/broker"
	"github.com/romanqed/qjazz/broker/local"
)

func TestEnqueueConsumeFIFO(t *testing.T) {
	b := local.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		kwargs := map[string]json.RawMessage{"n": json.RawMessage(strconv.Itoa(i))}
		if _, err := b.Enqueue(ctx, "q", "demo.run", kwargs, broker.EnqueueOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	var seen []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Consume(ctx, "q", "worker-1", func(_ context.Context, task broker.Task) error {
			var n int
			_ = json.Unmarshal(task.Kwargs["n"], &n)
			seen = append(seen, n)
			if len(seen) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consume loop")
	}

	if len(seen) != 3 || seen[0] != 0 || seen[1] != 1 || seen[2] != 2 {
		t.Fatalf("expected FIFO order [0 1 2], got %v", seen)
	}
}

func TestInspectBroadcastCollectsAllReplies(t *testing.T) {
	b := local.New(4)
	b.RegisterDestination("worker-1", map[string]broker.HandlerFunc{
		"presence": func(_ context.Context, _ map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":1}`), nil
		},
	})
	b.RegisterDestination("worker-2", map[string]broker.HandlerFunc{
		"presence": func(_ context.Context, _ map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":2}`), nil
		},
	})

	out, err := b.Inspect(context.Background(), "presence", b.Destinations(), true, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected replies from both destinations, got %d", len(out))
	}
}

func TestInspectUnicastPicksOneDestination(t *testing.T) {
	b := local.New(4)
	b.RegisterDestination("worker-1", map[string]broker.HandlerFunc{
		"describe_process": func(_ context.Context, _ map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	})

	out, err := b.Inspect(context.Background(), "describe_process", []string{"worker-1"}, false, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(out))
	}
}

func TestInspectNoDestinationsIsServiceNotAvailable(t *testing.T) {
	b := local.New(4)
	_, err := b.Inspect(context.Background(), "presence", nil, true, nil, time.Second)
	if err != broker.ErrServiceNotAvailable {
		t.Fatalf("expected ErrServiceNotAvailable, got %v", err)
	}
}

func TestInspectTimeoutIsUnreachable(t *testing.T) {
	b := local.New(4)
	b.RegisterDestination("worker-1", map[string]broker.HandlerFunc{
		"slow": func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	_, err := b.Inspect(context.Background(), "slow", []string{"worker-1"}, false, nil, 20*time.Millisecond)
	if err != broker.ErrUnreachableDestination {
		t.Fatalf("expected ErrUnreachableDestination, got %v", err)
	}
}

func TestRevokeRequiresAcknowledgement(t *testing.T) {
	b := local.New(4)
	b.RegisterDestination("worker-1", map[string]broker.HandlerFunc{
		"revoke": func(_ context.Context, args map[string]any) (json.RawMessage, error) {
			if args["task_id"] != "task-1" {
				t.Fatalf("unexpected task id arg: %v", args["task_id"])
			}
			return json.RawMessage(`{}`), nil
		},
	})

	if err := b.Revoke(context.Background(), "task-1", []string{"worker-1"}, time.Second); err != nil {
		t.Fatal(err)
	}
}
