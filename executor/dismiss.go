package executor

import (
	"context"
	"errors"

	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/registry"
)

// Dismiss implements spec §4.1's lock/classify/revoke/delete sequence:
// the per-job lock serializes concurrent dismiss attempts across
// executor instances, the current status decides whether a revoke RPC
// is needed, and the registry record is deleted only once the worker
// has been told to stop (or never started).
func (e *Executor) Dismiss(ctx context.Context, jobID, realm string) (*job.JobStatus, error) {
	unlock, err := e.locker.Lock(ctx, "job:"+jobID, e.cfg.DismissTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := e.reg.FindJob(ctx, jobID, realm)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if rec.Dismissed {
		return nil, ErrAlreadyDismissed
	}

	dests, err := e.destinationsOrErr(rec.Service)
	if err != nil {
		return nil, err
	}

	if err := e.reg.Dismiss(ctx, jobID, false); err != nil {
		return nil, err
	}

	status, err := e.JobStatus(ctx, jobID, "", false)
	if err != nil {
		// Roll back the dismissed flag so a retry is possible.
		_ = e.reg.Dismiss(ctx, jobID, true)
		return nil, err
	}

	if status.Status == job.Running || status.Status == job.Accepted {
		if err := e.broker.Revoke(ctx, jobID, dests, e.cfg.RevokeTimeout); err != nil {
			e.log.Warn("revoke did not reach a worker", "job_id", jobID, "err", err)
		}
	}

	if err := e.reg.Delete(ctx, jobID); err != nil {
		e.log.Warn("failed to delete registry record after dismiss", "job_id", jobID, "err", err)
	}

	return &job.JobStatus{
		JobID:     rec.JobID,
		ProcessID: rec.ProcessID,
		Status:    job.Dismissed,
		Created:   rec.Created,
		Tag:       rec.Tag,
	}, nil
}
