package executor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/registry"
	"github.com/romanqed/qjazz/resultstore"
)

// queryTaskReply is the shape of a "query_task" inspect reply: the
// broker-level delivery state of a still-pending message, distinct
// from the result-store's own task state.
type queryTaskReply struct {
	State string `json:"state"` // "active", "scheduled", "reserved", "revoked", ""
}

// JobStatus implements the meta x result-store decision table of spec
// §4.1/§4.3: while a task is still Pending in the result store, the
// broker is queried directly to distinguish "waiting on queue" from
// "claimed by a worker" from "revoked"; once the result store reports
// anything past Pending, that is authoritative.
func (e *Executor) JobStatus(ctx context.Context, jobID, realm string, withDetails bool) (*job.JobStatus, error) {
	rec, err := e.reg.FindJob(ctx, jobID, realm)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	meta, err := e.results.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			return e.pendingStatus(rec)
		}
		return nil, err
	}

	status, err := e.resolveStatus(ctx, rec, meta)
	if err != nil {
		return nil, err
	}

	if withDetails {
		if rec.ExpiresAt.After(time.Time{}) {
			expires := rec.ExpiresAt
			status.ExpiresAt = &expires
		}
	}
	return status, nil
}

// pendingStatus reports the status of a job that has no result-store
// record yet. Once the record is dismissed or its pending_timeout has
// elapsed since creation, the job is gone rather than merely pending —
// mirroring _job_status_pending's None return in the original, which
// the HTTP layer turns into a 404 instead of a 200 with a status body.
func (e *Executor) pendingStatus(rec *registry.Record) (*job.JobStatus, error) {
	if rec.Dismissed || time.Now().After(rec.Created.Add(rec.PendingTimeout)) {
		return nil, ErrJobNotFound
	}
	return &job.JobStatus{
		JobID:     rec.JobID,
		ProcessID: rec.ProcessID,
		Status:    job.Pending,
		Created:   rec.Created,
		Tag:       rec.Tag,
	}, nil
}

func (e *Executor) resolveStatus(ctx context.Context, rec *registry.Record, meta *resultstore.Meta) (*job.JobStatus, error) {
	out := &job.JobStatus{
		JobID:     rec.JobID,
		ProcessID: rec.ProcessID,
		Created:   rec.Created,
		Tag:       rec.Tag,
		Started:   meta.Started,
		Finished:  meta.Finished,
	}

	switch meta.State {
	case resultstore.Pending:
		// Mirrors STATE_PENDING in the original: once now >=
		// created+pending_timeout, a job with no broker-confirmed
		// active/scheduled/reserved state has expired off the queue and
		// is reported as gone (404), not stuck pending forever.
		expired := time.Now().After(rec.Created.Add(rec.PendingTimeout))
		dests := e.Destinations(rec.Service)
		if len(dests) == 0 {
			if expired {
				return nil, ErrJobNotFound
			}
			out.Status = job.Pending
			return out, nil
		}
		reply, err := e.broker.Inspect(ctx, "query_task", dests, false, map[string]any{"task_id": rec.JobID}, e.cfg.InspectTimeout)
		if err != nil || len(reply) == 0 {
			if expired {
				return nil, ErrJobNotFound
			}
			out.Status = job.Pending
			return out, nil
		}
		var qt queryTaskReply
		for _, raw := range reply {
			_ = json.Unmarshal(raw, &qt)
			break
		}
		switch qt.State {
		case "active":
			out.Status = job.Running
		case "scheduled", "reserved":
			out.Status = job.Accepted
		case "revoked":
			out.Status = job.Dismissed
		default:
			if expired {
				return nil, ErrJobNotFound
			}
			out.Status = job.Pending
		}
	case resultstore.Started:
		out.Status = job.Running
		out.Message = "Task started"
	case resultstore.Updated:
		out.Status = job.Running
		out.Progress = meta.Progress
		out.Message = meta.Message
		updated := meta.UpdatedAt
		out.Updated = &updated
	case resultstore.Success:
		out.Status = job.Successful
		out.Progress = 100
		out.Message = "Task finished"
	case resultstore.Failure:
		out.Status = job.Failed
		out.Progress = 100
		out.Exception = meta.Exception
	case resultstore.Revoked:
		out.Status = job.Dismissed
		out.Message = "Task dismissed"
	default:
		out.Status = job.Unknown
	}
	return out, nil
}
