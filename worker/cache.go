package worker

import (
	"context"

	"github.com/romanqed/qjazz/internal"
	"github.com/romanqed/qjazz/process"
)

type cacheRequest struct {
	ident   string
	project string
	reply   chan *process.Descriptor
}

// DescriptionCache holds the process descriptor catalogue behind a
// single goroutine, serializing reload (triggered by the
// reload_processes_cache control command or an fsnotify watch) against
// concurrent describe/list lookups without locks — the Go analogue of
// the teacher's channel-based internal.WorkerPool idiom, generalized
// from "dispatch work" to "serialize cache access". There is no
// process fork to reuse here: Go shares the catalogue across
// goroutines natively, so a dedicated actor goroutine replaces the
// per-process cache the original relied on.
type DescriptionCache struct {
	catalogue process.Catalogue
	describe  chan cacheRequest
	list      chan chan []process.Descriptor
	reload    chan internal.DoneChan
	done      internal.DoneChan
	cancel    context.CancelFunc
}

func newDescriptionCache(catalogue process.Catalogue) *DescriptionCache {
	return &DescriptionCache{
		catalogue: catalogue,
		describe:  make(chan cacheRequest),
		list:      make(chan chan []process.Descriptor),
		reload:    make(chan internal.DoneChan),
	}
}

// Start launches the cache actor goroutine.
func (c *DescriptionCache) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(internal.DoneChan)
	go c.run(ctx)
}

// Stop terminates the actor goroutine.
func (c *DescriptionCache) Stop() internal.DoneChan {
	c.cancel()
	return c.done
}

func (c *DescriptionCache) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.describe:
			entry, ok := c.catalogue[req.ident]
			if !ok {
				req.reply <- nil
				continue
			}
			d := entry.Descriptor
			req.reply <- &d
		case replyTo := <-c.list:
			out := make([]process.Descriptor, 0, len(c.catalogue))
			for _, entry := range c.catalogue {
				out = append(out, entry.Descriptor)
			}
			replyTo <- out
		case done := <-c.reload:
			// The catalogue is supplied at construction time; reload is
			// a no-op placeholder for an embedding application that
			// swaps c.catalogue via its own mechanism before signalling
			// here.
			close(done)
		}
	}
}

// Describe returns the descriptor for ident, or nil if unknown.
func (c *DescriptionCache) Describe(ctx context.Context, ident, project string) *process.Descriptor {
	reply := make(chan *process.Descriptor, 1)
	select {
	case c.describe <- cacheRequest{ident: ident, project: project, reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case d := <-reply:
		return d
	case <-ctx.Done():
		return nil
	}
}

// List returns every registered process descriptor.
func (c *DescriptionCache) List(ctx context.Context) []process.Descriptor {
	reply := make(chan []process.Descriptor, 1)
	select {
	case c.list <- reply:
	case <-ctx.Done():
		return nil
	}
	select {
	case out := <-reply:
		return out
	case <-ctx.Done():
		return nil
	}
}

// Reload signals the cache to refresh, blocking until acknowledged.
func (c *DescriptionCache) Reload(ctx context.Context) {
	done := make(internal.DoneChan)
	select {
	case c.reload <- done:
	case <-ctx.Done():
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}
