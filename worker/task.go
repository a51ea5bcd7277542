package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/romanqed/qjazz/broker"
	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/process"
	"github.com/romanqed/qjazz/resultstore"
)

const filesManifest = "links.json"

// beforeStart mirrors QgisProcessJob.before_start: a task picked up by
// a worker after being dismissed while pending must not run.
func (w *Worker) beforeStart(ctx context.Context, jobID string) error {
	exists, err := w.reg.Exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return &DismissedTaskError{JobID: jobID}
	}
	rec, err := w.reg.FindJob(ctx, jobID, "")
	if err != nil {
		return err
	}
	if rec.Dismissed {
		return &DismissedTaskError{JobID: jobID}
	}
	return nil
}

// runTask executes one delivered task end to end: existence/dismissed
// check, workdir setup, job function invocation with throttled
// progress, artifact persistence, and callback dispatch.
func (w *Worker) runTask(ctx context.Context, t broker.Task) {
	jobID := t.ID
	log := w.log.With("job_id", jobID, "service", w.cfg.ServiceName)

	if err := w.beforeStart(ctx, jobID); err != nil {
		log.Info("task dismissed before start", "err", err)
		_ = w.results.MarkRevoked(ctx, jobID)
		return
	}

	meta, err := decodeMeta(t.Kwargs)
	if err != nil {
		log.Error("bad task meta", "err", err)
		_ = w.results.MarkFailure(ctx, jobID, "internal error: malformed task envelope")
		return
	}
	runConfig, err := decodeRunConfig(t.Kwargs)
	if err != nil {
		log.Error("bad run config", "err", err)
		_ = w.results.MarkFailure(ctx, jobID, "internal error: malformed run config")
		return
	}

	entry, ok := w.catalogue[runConfig.Ident]
	if !ok {
		_ = w.results.MarkFailure(ctx, jobID, fmt.Sprintf("unknown process %q", runConfig.Ident))
		return
	}

	var request process.Request
	if err := json.Unmarshal(runConfig.Request, &request); err != nil {
		_ = w.results.MarkFailure(ctx, jobID, "internal error: malformed request body")
		return
	}

	if err := w.results.MarkStarted(ctx, jobID); err != nil {
		log.Warn("failed to mark task started", "err", err)
	}
	w.dispatchInProgress(ctx, meta, jobID, request.Subscriber)

	workDir := filepath.Join(w.cfg.WorkDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		_ = w.results.MarkFailure(ctx, jobID, "internal error: cannot create work directory")
		return
	}
	sentinel := filepath.Join(workDir, ".job-expire-"+w.cfg.ServiceName)
	_ = os.WriteFile(sentinel, nil, 0o644)

	coalescer := &internalProgress{w: w, ctx: ctx, jobID: jobID, meta: meta}
	coalescer.start()
	defer coalescer.stop()

	jctx := &process.JobContext{
		JobID:     jobID,
		ProcessID: runConfig.Ident,
		WorkDir:   workDir,
		Tag:       meta.Tag,
		StartedAt: time.Now(),
	}

	result, runErr := entry.Func(ctx, request, coalescer, jctx)
	if runErr != nil {
		state, message := classify(runErr)
		_ = w.results.MarkFailure(ctx, jobID, message)
		w.dispatchFailure(ctx, meta, jobID, request.Subscriber)
		log.Info("job failed", "state", state, "err", runErr)
		return
	}

	if err := w.storeFiles(ctx, jobID, workDir, result.Files); err != nil {
		log.Error("failed to persist job artifacts", "err", err)
		_ = w.results.MarkFailure(ctx, jobID, "internal error: failed to persist results")
		return
	}

	outputs, err := json.Marshal(result.Outputs)
	if err != nil {
		_ = w.results.MarkFailure(ctx, jobID, "internal error: malformed job output")
		return
	}
	if err := w.results.MarkSuccess(ctx, jobID, outputs); err != nil {
		log.Warn("failed to mark task success", "err", err)
	}
	w.dispatchSuccess(ctx, meta, jobID, request.Subscriber, outputs)
}

func (w *Worker) storeFiles(ctx context.Context, jobID, workDir string, files []string) error {
	links := make([]job.Link, 0, len(files))
	for _, name := range files {
		info, err := os.Stat(filepath.Join(workDir, name))
		if err != nil {
			continue
		}
		links = append(links, job.Link{
			Href:   name,
			Rel:    "result",
			Title:  name,
			Length: info.Size(),
		})
	}
	body, err := json.Marshal(links)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(workDir, filesManifest), body, 0o644); err != nil {
		return err
	}
	if w.store == nil {
		return nil
	}
	return w.store.Move(ctx, jobID, files, workDir)
}

// classify maps a job function's error into a result-store state and a
// client-facing message, the Go analogue of the original's exception
// pattern match in _job_status. Only InputValueError's message is ever
// client-facing; every other case is a generic string, with the real
// error left to the caller's log line.
func classify(err error) (resultstore.TaskState, string) {
	var inputErr *process.InputValueError
	if errors.As(err, &inputErr) {
		return resultstore.Failure, inputErr.Error()
	}
	var dismissed *DismissedTaskError
	if errors.As(err, &dismissed) {
		return resultstore.Revoked, "dismissed task"
	}
	var runErr *process.RunProcessError
	if errors.As(err, &runErr) {
		return resultstore.Failure, "Internal processing error"
	}
	return resultstore.Failure, "Internal worker error"
}
