// Package local implements broker.Broker as an in-process transport:
// one buffered Go channel per queue for tasks, and a fan-out/fan-in
// goroutine for inspect/control RPCs. It exists for tests and
// single-binary deployments where the executor and every worker share
// a process; it is grounded on the teacher's internal.WorkerPool
// consumer loop and internal.TimerTask ticking idioms, generalized
// from a SQL-backed lease queue to a pure in-memory one.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romanqed/qjazz/broker"
)

type queueEntry struct {
	task    broker.Task
	readyAt time.Time
}

// Broker is a channel-backed broker.Broker. Zero value is not usable;
// construct with New.
type Broker struct {
	mu          sync.Mutex
	queues      map[string]chan queueEntry
	destMu      sync.RWMutex
	handlers    map[string]map[string]broker.HandlerFunc // destination -> command -> handler
	queueSize   int
}

// New creates an empty in-process broker. queueSize bounds the number
// of pending (published, not yet delivered) tasks buffered per queue.
func New(queueSize int) *Broker {
	return &Broker{
		queues:    make(map[string]chan queueEntry),
		handlers:  make(map[string]map[string]broker.HandlerFunc),
		queueSize: queueSize,
	}
}

func (b *Broker) queueFor(name string) chan queueEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan queueEntry, b.queueSize)
		b.queues[name] = q
	}
	return q
}

// Enqueue implements broker.Broker.
func (b *Broker) Enqueue(ctx context.Context, queue, name string, kwargs map[string]json.RawMessage, opts broker.EnqueueOptions) (string, error) {
	id := uuid.NewString()
	entry := queueEntry{
		task: broker.Task{
			ID:     id,
			Name:   name,
			Queue:  queue,
			Kwargs: kwargs,
		},
	}
	if opts.Countdown > 0 {
		entry.readyAt = time.Now().Add(opts.Countdown)
	}
	select {
	case b.queueFor(queue) <- entry:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Consume implements broker.Broker.
func (b *Broker) Consume(ctx context.Context, queue, destination string, fn broker.ConsumeFunc) error {
	ch := b.queueFor(queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-ch:
			if delay := time.Until(entry.readyAt); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			_ = fn(ctx, entry.task)
		}
	}
}

// RegisterHandler implements broker.Broker.
func (b *Broker) RegisterHandler(name string, fn broker.HandlerFunc) {
	b.destMu.Lock()
	defer b.destMu.Unlock()
	// Handlers registered here go into the wildcard table, which serves
	// as the fallback for any destination without its own handler for
	// the command; see RegisterDestination below for the
	// per-destination binding used by Inspect/Revoke.
	if b.handlers["*"] == nil {
		b.handlers["*"] = make(map[string]broker.HandlerFunc)
	}
	b.handlers["*"][name] = fn
}

// RegisterDestination binds a set of command handlers to a specific
// destination name, so Inspect/Revoke can address it individually
// rather than broadcasting to every registered handler.
func (b *Broker) RegisterDestination(destination string, handlers map[string]broker.HandlerFunc) {
	b.destMu.Lock()
	defer b.destMu.Unlock()
	m, ok := b.handlers[destination]
	if !ok {
		m = make(map[string]broker.HandlerFunc)
		b.handlers[destination] = m
	}
	for name, fn := range handlers {
		m[name] = fn
	}
}

// Destinations implements broker.Broker.
func (b *Broker) Destinations() []string {
	b.destMu.RLock()
	defer b.destMu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for dest := range b.handlers {
		if dest == "*" {
			continue
		}
		out = append(out, dest)
	}
	return out
}

func (b *Broker) handlerFor(destination, name string) (broker.HandlerFunc, bool) {
	b.destMu.RLock()
	defer b.destMu.RUnlock()
	if m, ok := b.handlers[destination]; ok {
		if fn, ok := m[name]; ok {
			return fn, true
		}
	}
	if m, ok := b.handlers["*"]; ok {
		if fn, ok := m[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// Inspect implements broker.Broker.
func (b *Broker) Inspect(ctx context.Context, name string, destinations []string, broadcastAll bool, args map[string]any, timeout time.Duration) (map[string]json.RawMessage, error) {
	if len(destinations) == 0 {
		return nil, broker.ErrServiceNotAvailable
	}
	targets := destinations
	if !broadcastAll {
		targets = []string{destinations[rand.IntN(len(destinations))]}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		dest string
		body json.RawMessage
		err  error
	}
	results := make(chan result, len(targets))
	for _, dest := range targets {
		dest := dest
		go func() {
			fn, ok := b.handlerFor(dest, name)
			if !ok {
				results <- result{dest: dest, err: broker.ErrUnreachableDestination}
				return
			}
			body, err := fn(ctx, args)
			results <- result{dest: dest, body: body, err: err}
		}()
	}

	out := make(map[string]json.RawMessage)
	for i := 0; i < len(targets); i++ {
		select {
		case r := <-results:
			if r.err == nil {
				out[r.dest] = r.body
			}
		case <-ctx.Done():
			if len(out) == 0 {
				return nil, broker.ErrUnreachableDestination
			}
			return out, nil
		}
	}
	if len(out) == 0 {
		return nil, broker.ErrUnreachableDestination
	}
	return out, nil
}

// Revoke implements broker.Broker.
func (b *Broker) Revoke(ctx context.Context, taskID string, destinations []string, timeout time.Duration) error {
	args := map[string]any{"task_id": taskID}
	res, err := b.Inspect(ctx, "revoke", destinations, true, args, timeout)
	if err != nil {
		return err
	}
	if len(res) == 0 {
		return fmt.Errorf("revoke %s: %w", taskID, broker.ErrUnreachableDestination)
	}
	return nil
}
