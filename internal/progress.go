package internal

import (
	"context"
	"time"
)

// ProgressUpdate is a single feedback sample reported by a running job.
type ProgressUpdate struct {
	Progress int
	Message  string
}

// ProgressCoalescer forwards the most recent ProgressUpdate to Sink at
// most once per interval, dropping intermediate values. It is the Go
// analogue of the teacher's lease-extension goroutine in
// handleOrExtend: a ticker-driven loop racing a result channel, here
// generalized from "extend a lock" to "flush the latest progress".
type ProgressCoalescer struct {
	Interval time.Duration
	Sink     func(ProgressUpdate)

	in chan ProgressUpdate
}

// Start begins coalescing. Report may be called freely from the job
// goroutine; Run drains it until ctx is canceled.
func (p *ProgressCoalescer) Start() {
	p.in = make(chan ProgressUpdate, 1)
}

// Report submits the latest progress sample, overwriting any unflushed
// pending sample so only the most recent one survives until the next
// tick.
func (p *ProgressCoalescer) Report(u ProgressUpdate) {
	select {
	case p.in <- u:
	default:
		select {
		case <-p.in:
		default:
		}
		select {
		case p.in <- u:
		default:
		}
	}
}

// Run drains coalesced updates until ctx is done, flushing at most once
// per Interval.
func (p *ProgressCoalescer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	var pending *ProgressUpdate
	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				p.Sink(*pending)
			}
			return
		case u := <-p.in:
			cp := u
			pending = &cp
		case <-ticker.C:
			if pending != nil {
				p.Sink(*pending)
				pending = nil
			}
		}
	}
}
