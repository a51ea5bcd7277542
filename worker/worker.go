// Package worker implements the per-service processing daemon: it
// consumes process_execute tasks from the broker, runs them through a
// bounded internal.WorkerPool, reports progress/outcome into the
// result store, persists artifacts via storage.Storage, and serves the
// inspect/control commands the executor addresses to it (presence,
// list_processes, describe_process, job_log, job_files, download_url,
// cleanup, reload_processes_cache). Generalizes the teacher's
// Worker/CleanWorker pair from SQL lease polling to broker-delivered
// tasks.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/romanqed/qjazz/broker"
	"github.com/romanqed/qjazz/callback"
	"github.com/romanqed/qjazz/internal"
	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/process"
	"github.com/romanqed/qjazz/registry"
	"github.com/romanqed/qjazz/resultstore"
	"github.com/romanqed/qjazz/storage"
)

// DismissedTaskError is raised by beforeStart when a task is picked up
// by a worker after having been marked dismissed while still pending.
type DismissedTaskError struct {
	JobID string
}

func (e *DismissedTaskError) Error() string {
	return "job " + e.JobID + " was dismissed before being started"
}

// Worker is one service instance: a broker consumer bound to a process
// catalogue.
type Worker struct {
	Destination string
	cfg         Config
	broker      broker.Broker
	reg         registry.Store
	locker      registry.Locker
	results     resultstore.Store
	store       storage.Storage
	callbacks   map[string]callback.Handler
	catalogue   process.Catalogue
	log         *slog.Logger

	pool    *internal.WorkerPool[broker.Task]
	cache   *DescriptionCache
	cleanup *CleanWorker
	lc      internal.Lifecycle

	onlineSince time.Time
}

// New creates a Worker bound to catalogue and the given collaborators.
func New(
	dest string,
	cfg Config,
	b broker.Broker,
	reg registry.Store,
	locker registry.Locker,
	results resultstore.Store,
	store storage.Storage,
	callbacks map[string]callback.Handler,
	catalogue process.Catalogue,
	log *slog.Logger,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		Destination: dest,
		cfg:         cfg,
		broker:      b,
		reg:         reg,
		locker:      locker,
		results:     results,
		store:       store,
		callbacks:   callbacks,
		catalogue:   catalogue,
		log:         log,
	}
	w.cache = newDescriptionCache(catalogue)
	w.cleanup = &CleanWorker{
		ServiceName: cfg.ServiceName,
		WorkDir:     cfg.WorkDir,
		Registry:    reg,
		Locker:      locker,
		Storage:     store,
		Interval:    cfg.CleanupInterval,
		LockTimeout: cfg.CleanupLockTimeout,
		log:         log,
	}
	return w
}

// Start begins consuming the service queue and registers the
// destination's inspect/control handlers with the broker.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.lc.TryStart(); err != nil {
		return err
	}
	w.onlineSince = time.Now()
	w.cache.Start(ctx)
	w.cleanup.Start(ctx)
	w.watchReload(ctx)

	if r, ok := w.broker.(interface {
		RegisterDestination(string, map[string]broker.HandlerFunc)
	}); ok {
		r.RegisterDestination(w.Destination, w.handlers())
	} else {
		for name, fn := range w.handlers() {
			w.broker.RegisterHandler(name, fn)
		}
	}

	w.pool = internal.NewWorkerPool[broker.Task](w.cfg.Concurrency, w.cfg.QueueSize, w.log)
	w.pool.Start(ctx, w.dispatch)

	queue := "qjazz." + w.cfg.ServiceName
	go func() {
		if err := w.broker.Consume(ctx, queue, w.Destination, w.enqueue); err != nil && ctx.Err() == nil {
			w.log.Error("consume loop stopped", "err", err)
		}
	}()
	return nil
}

// Stop halts consumption, the description cache, and cleanup sweep.
func (w *Worker) Stop(timeout time.Duration) error {
	return w.lc.TryStop(timeout, func() internal.DoneChan {
		poolDone := w.pool.Stop()
		cacheDone := w.cache.Stop()
		cleanupDone := w.cleanup.Stop()
		return internal.Combine(poolDone, internal.Combine(cacheDone, cleanupDone))
	})
}

func (w *Worker) enqueue(ctx context.Context, t broker.Task) error {
	if !w.pool.Push(t) {
		return errors.New("worker: pool closed")
	}
	return nil
}

func (w *Worker) dispatch(ctx context.Context, t broker.Task) {
	if w.store != nil {
		w.store.BeforeCreateProcess()
	}
	w.runTask(ctx, t)
}

func decodeMeta(kwargs map[string]json.RawMessage) (job.Meta, error) {
	var meta job.Meta
	raw, ok := kwargs["__meta__"]
	if !ok {
		return meta, errors.New("worker: missing __meta__")
	}
	return meta, json.Unmarshal(raw, &meta)
}

func decodeRunConfig(kwargs map[string]json.RawMessage) (job.RunConfig, error) {
	var rc job.RunConfig
	raw, ok := kwargs["__run_config__"]
	if !ok {
		return rc, errors.New("worker: missing __run_config__")
	}
	return rc, json.Unmarshal(raw, &rc)
}
