// Package callback dispatches job lifecycle notifications to a
// subscriber-supplied URL (the OGC-API-Processes "subscriber" object),
// mirroring the three callback points the original worker fires:
// in-progress, success, and failure.
package callback

import (
	"context"
	"encoding/json"

	"github.com/romanqed/qjazz/job"
)

// Handler dispatches one notification kind to url. Implementations
// must not block the caller for longer than their own configured
// timeout, and dispatch errors are logged and swallowed by the caller
// rather than failing the job.
type Handler interface {
	InProgress(ctx context.Context, url, jobID string, meta job.Meta) error
	OnSuccess(ctx context.Context, url, jobID string, meta job.Meta, results json.RawMessage) error
	OnFailure(ctx context.Context, url, jobID string, meta job.Meta) error
}
