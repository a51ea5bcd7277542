package worker

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/romanqed/qjazz/callback"
	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/process"
)

// dispatchInProgress, dispatchSuccess, and dispatchFailure fire the
// subscriber callback a client registered on the execution request, if
// any. The handler is chosen by the target URL's scheme from the
// callbacks map passed to New. Dispatch errors are logged and
// swallowed (spec §7 "Callback dispatch errors" never fail the job
// itself).
func (w *Worker) dispatchInProgress(ctx context.Context, meta job.Meta, jobID string, sub *process.Subscriber) {
	if sub == nil || sub.InProgressURI == "" {
		return
	}
	if h, ok := w.handlerFor(sub.InProgressURI); ok {
		if err := h.InProgress(ctx, sub.InProgressURI, jobID, meta); err != nil {
			w.log.Warn("in-progress callback failed", "job_id", jobID, "err", err)
		}
	}
}

func (w *Worker) dispatchSuccess(ctx context.Context, meta job.Meta, jobID string, sub *process.Subscriber, results json.RawMessage) {
	if sub == nil || sub.SuccessURI == "" {
		return
	}
	if h, ok := w.handlerFor(sub.SuccessURI); ok {
		if err := h.OnSuccess(ctx, sub.SuccessURI, jobID, meta, results); err != nil {
			w.log.Warn("success callback failed", "job_id", jobID, "err", err)
		}
	}
}

func (w *Worker) dispatchFailure(ctx context.Context, meta job.Meta, jobID string, sub *process.Subscriber) {
	if sub == nil || sub.FailedURI == "" {
		return
	}
	if h, ok := w.handlerFor(sub.FailedURI); ok {
		if err := h.OnFailure(ctx, sub.FailedURI, jobID, meta); err != nil {
			w.log.Warn("failure callback failed", "job_id", jobID, "err", err)
		}
	}
}

func (w *Worker) handlerFor(target string) (callback.Handler, bool) {
	u, err := url.Parse(target)
	if err != nil {
		w.log.Warn("malformed subscriber url", "url", target, "err", err)
		return nil, false
	}
	h, ok := w.callbacks[u.Scheme]
	return h, ok
}
