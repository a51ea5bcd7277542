package executor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/resultstore"
)

// Jobs lists jobs for service/realm with cursor pagination, resolving
// each record's current status the same way JobStatus does.
func (e *Executor) Jobs(ctx context.Context, service, realm string, cursor, limit int) ([]job.JobStatus, int, error) {
	next, records, err := e.reg.FindKeys(ctx, service, realm, cursor, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]job.JobStatus, 0, len(records))
	for _, rec := range records {
		rec := rec
		meta, err := e.results.Get(ctx, rec.JobID)
		if err != nil {
			if errors.Is(err, resultstore.ErrNotFound) {
				status, err := e.pendingStatus(&rec)
				if err != nil {
					if errors.Is(err, ErrJobNotFound) {
						// Expired or dismissed with no result-store
						// record: gone, so it drops out of the listing
						// rather than failing the whole page.
						continue
					}
					return nil, 0, err
				}
				out = append(out, *status)
				continue
			}
			return nil, 0, err
		}
		status, err := e.resolveStatus(ctx, &rec, meta)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return nil, 0, err
		}
		out = append(out, *status)
	}
	return out, next, nil
}

// Results returns a successful job's result payload, scoped to realm
// when non-empty.
func (e *Executor) Results(ctx context.Context, jobID, realm string) (json.RawMessage, error) {
	if realm != "" {
		if _, err := e.reg.FindJob(ctx, jobID, realm); err != nil {
			return nil, ErrJobNotFound
		}
	}
	meta, err := e.results.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if meta.State != resultstore.Success {
		return nil, errors.New("executor: job has no results yet")
	}
	return meta.Result, nil
}

// LogDetails fetches a job's log via an addressed inspect command to
// the owning service.
func (e *Executor) LogDetails(ctx context.Context, jobID, realm string) (json.RawMessage, error) {
	rec, err := e.reg.FindJob(ctx, jobID, realm)
	if err != nil {
		return nil, ErrJobNotFound
	}
	dests, err := e.destinationsOrErr(rec.Service)
	if err != nil {
		return nil, err
	}
	reply, err := e.broker.Inspect(ctx, "job_log", dests, false, map[string]any{"job_id": jobID}, e.cfg.InspectTimeout)
	if err != nil {
		return nil, err
	}
	return firstReply(reply), nil
}

// Files lists a job's produced files via an addressed inspect command.
func (e *Executor) Files(ctx context.Context, jobID, realm string) (json.RawMessage, error) {
	rec, err := e.reg.FindJob(ctx, jobID, realm)
	if err != nil {
		return nil, ErrJobNotFound
	}
	dests, err := e.destinationsOrErr(rec.Service)
	if err != nil {
		return nil, err
	}
	reply, err := e.broker.Inspect(ctx, "job_files", dests, false, map[string]any{"job_id": jobID}, e.cfg.InspectTimeout)
	if err != nil {
		return nil, err
	}
	return firstReply(reply), nil
}

// DownloadURL resolves a download link for resource belonging to jobID
// via an addressed inspect command.
func (e *Executor) DownloadURL(ctx context.Context, jobID, realm, resource string) (job.Link, error) {
	rec, err := e.reg.FindJob(ctx, jobID, realm)
	if err != nil {
		return job.Link{}, ErrJobNotFound
	}
	dests, err := e.destinationsOrErr(rec.Service)
	if err != nil {
		return job.Link{}, err
	}
	reply, err := e.broker.Inspect(ctx, "download_url", dests, false, map[string]any{
		"job_id":   jobID,
		"resource": resource,
	}, e.cfg.InspectTimeout)
	if err != nil {
		return job.Link{}, err
	}
	var link job.Link
	if err := json.Unmarshal(firstReply(reply), &link); err != nil {
		return job.Link{}, err
	}
	return link, nil
}

func firstReply(reply map[string]json.RawMessage) json.RawMessage {
	for _, raw := range reply {
		return raw
	}
	return nil
}
