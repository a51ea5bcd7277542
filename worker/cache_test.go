package worker

import (
	"context"
	"testing"
	"time"

	"github.com/romanqed/qjazz/process"
)

func testCatalogue() process.Catalogue {
	return process.Catalogue{
		"echo": {
			Descriptor: process.Descriptor{ID: "echo", Title: "Echo"},
		},
		"noop": {
			Descriptor: process.Descriptor{ID: "noop", Title: "No-op"},
		},
	}
}

func TestDescriptionCacheDescribeKnown(t *testing.T) {
	cache := newDescriptionCache(testCatalogue())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cache.Start(ctx)
	defer cache.Stop()

	d := cache.Describe(ctx, "echo", "")
	if d == nil {
		t.Fatal("expected descriptor for known process")
	}
	if d.Title != "Echo" {
		t.Fatalf("expected title Echo, got %s", d.Title)
	}
}

func TestDescriptionCacheDescribeUnknown(t *testing.T) {
	cache := newDescriptionCache(testCatalogue())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cache.Start(ctx)
	defer cache.Stop()

	if d := cache.Describe(ctx, "nope", ""); d != nil {
		t.Fatalf("expected nil descriptor for unknown process, got %+v", d)
	}
}

func TestDescriptionCacheList(t *testing.T) {
	cache := newDescriptionCache(testCatalogue())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cache.Start(ctx)
	defer cache.Stop()

	list := cache.List(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(list))
	}
}

func TestDescriptionCacheReload(t *testing.T) {
	cache := newDescriptionCache(testCatalogue())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cache.Start(ctx)
	defer cache.Stop()

	// Reload must return promptly even though the catalogue is static.
	done := make(chan struct{})
	go func() {
		cache.Reload(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reload did not return")
	}
}
