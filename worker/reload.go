package worker

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// watchReload watches cfg.ReloadMonitor (when configured) and triggers
// a description cache reload on every write or create event, replacing
// the original's watchdog-file polling with fsnotify's kernel-level
// notifications. The worker pool is not restarted.
func (w *Worker) watchReload(ctx context.Context) {
	if w.cfg.ReloadMonitor == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Error("failed to start reload watcher", "err", err)
		return
	}
	if err := watcher.Add(w.cfg.ReloadMonitor); err != nil {
		w.log.Error("failed to watch reload monitor path", "path", w.cfg.ReloadMonitor, "err", err)
		watcher.Close()
		return
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.log.Info("reload monitor triggered", "path", ev.Name)
				w.cache.Reload(ctx)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("reload watcher error", "err", err)
			}
		}
	}()
}
