package worker

import (
	"context"

	"github.com/romanqed/qjazz/internal"
	"github.com/romanqed/qjazz/job"
)

// internalProgress adapts process.Feedback onto internal.ProgressCoalescer,
// flushing at most once per w.cfg.ProgressFlushInterval into the result
// store (spec §4.2/§9 "Progress reporting": I4 non-decreasing progress,
// throttled updates).
type internalProgress struct {
	w      *Worker
	ctx    context.Context
	jobID  string
	meta   job.Meta
	cancel context.CancelFunc
	last   int
	coal   *internal.ProgressCoalescer
}

func (p *internalProgress) start() {
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel
	p.coal = &internal.ProgressCoalescer{
		Interval: p.w.cfg.ProgressFlushInterval,
		Sink: func(u internal.ProgressUpdate) {
			progress := job.Clamp(p.last, u.Progress)
			p.last = progress
			if err := p.w.results.ReportProgress(p.ctx, p.jobID, progress, u.Message); err != nil {
				p.w.log.Warn("failed to report progress", "job_id", p.jobID, "err", err)
			}
		},
	}
	p.coal.Start()
	go p.coal.Run(ctx)
}

func (p *internalProgress) stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Progress implements process.Feedback.
func (p *internalProgress) Progress(percent int, message string) {
	p.coal.Report(internal.ProgressUpdate{Progress: percent, Message: message})
}
