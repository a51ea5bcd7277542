package worker

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/romanqed/qjazz/internal"
	"github.com/romanqed/qjazz/registry"
	"github.com/romanqed/qjazz/storage"
)

// CleanWorker periodically reclaims job working directories whose
// registry record has expired, the direct generalization of the
// teacher's gqs.CleanWorker: instead of deleting terminal-status SQL
// rows, it globs the service's expiry sentinel files and checks
// registry.Store.Exists before removing a directory, serialized by
// registry.Locker so only one instance of a replicated executor/worker
// deployment runs a sweep at a time. Scheduling uses gocron/v2 rather
// than the tight internal.TimerTask loop, since a cleanup pass is a
// named, independently inspectable job rather than a lease-extension
// tick.
type CleanWorker struct {
	ServiceName string
	WorkDir     string
	Registry    registry.Store
	Locker      registry.Locker
	Storage     storage.Storage
	Interval    time.Duration
	LockTimeout time.Duration

	log       *slog.Logger
	scheduler gocron.Scheduler
	done      internal.DoneChan
}

// Start schedules the periodic sweep.
func (c *CleanWorker) Start(ctx context.Context) {
	if c.log == nil {
		c.log = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		c.log.Error("failed to create cleanup scheduler", "err", err)
		return
	}
	c.scheduler = s
	_, err = s.NewJob(
		gocron.DurationJob(c.Interval),
		gocron.NewTask(func() {
			if err := c.sweep(ctx); err != nil {
				c.log.Warn("cleanup sweep failed", "err", err)
			}
		}),
	)
	if err != nil {
		c.log.Error("failed to schedule cleanup job", "err", err)
		return
	}
	c.done = make(internal.DoneChan)
	s.Start()
}

// Stop halts the scheduler.
func (c *CleanWorker) Stop() internal.DoneChan {
	done := make(internal.DoneChan)
	go func() {
		if c.scheduler != nil {
			_ = c.scheduler.Shutdown()
		}
		close(done)
	}()
	return done
}

func (c *CleanWorker) sweep(ctx context.Context) error {
	unlock, err := c.Locker.Lock(ctx, "lock:"+c.ServiceName+":cleanup-batch", c.LockTimeout)
	if err != nil {
		// Another instance is already sweeping; not an error.
		return nil
	}
	defer unlock()

	pattern := filepath.Join(c.WorkDir, "*", ".job-expire-"+c.ServiceName)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, sentinel := range matches {
		jobDir := filepath.Dir(sentinel)
		jobID := filepath.Base(jobDir)

		exists, err := c.Registry.Exists(ctx, jobID)
		if err != nil {
			c.log.Warn("exists check failed during cleanup", "job_id", jobID, "err", err)
			continue
		}
		if exists {
			continue
		}

		if c.Storage != nil {
			if err := c.Storage.Remove(ctx, jobID, c.WorkDir); err != nil {
				c.log.Warn("failed to remove stored artifacts", "job_id", jobID, "err", err)
			}
		}
		if err := os.RemoveAll(jobDir); err != nil {
			c.log.Error("failed to remove job directory", "job_dir", jobDir, "err", err)
		}
	}
	return nil
}
