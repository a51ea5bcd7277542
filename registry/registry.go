// Package registry implements the job registry described by the
// distributed job-execution platform: a TTL-backed index mapping a job
// ID to its realm/service/process ownership, used to authorize access
// to a job and to drive cleanup. It generalizes the teacher's
// sql.Puller/Observer/Cleaner trio (atomic UPDATE ... RETURNING
// transitions over a bun-modeled table) from a delivery-state queue
// into a realm-scoped ownership index.
package registry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a job ID has no registry record, or
	// exists but is not visible to the requesting realm.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyDismissed is returned by Dismiss when the record was
	// already marked dismissed.
	ErrAlreadyDismissed = errors.New("job already dismissed")
)

// Record is the registry's ownership and lifecycle envelope for one
// job. It never carries job status/progress — that lives in
// resultstore — only the facts needed to authorize access and to know
// when the record itself expires.
type Record struct {
	JobID          string
	Service        string
	Realm          string
	ProcessID      string
	Created        time.Time
	Dismissed      bool
	PendingTimeout time.Duration
	Tag            string
	ExpiresAt      time.Time
}

// Key renders the record's logical KV key, preserved for compatibility
// with any future pure-KV port even though the SQL implementation uses
// real columns.
func (r Record) Key() string {
	return "qjazz::" + r.JobID + "::" + r.Service + "::" + r.Realm
}

// Store is the registry's storage contract.
type Store interface {
	// Register inserts a new record in the Pending window.
	Register(ctx context.Context, rec Record) error

	// FindJob returns the record for jobID, scoped to realm unless
	// realm is empty (admin/unscoped lookup). Returns ErrNotFound if no
	// visible record exists.
	FindJob(ctx context.Context, jobID, realm string) (*Record, error)

	// FindKeys performs a cursor-paginated, indexed scan of records for
	// service and realm (realm empty means unscoped). Returns the next
	// cursor (0 when exhausted) and the page of records.
	FindKeys(ctx context.Context, service, realm string, cursor, limit int) (next int, items []Record, err error)

	// Dismiss atomically flips a record's dismissed flag. If reset is
	// true, dismissed is cleared instead of set (used to roll back a
	// dismiss attempt whose job status could not be resolved). Returns
	// ErrNotFound if jobID has no record, ErrAlreadyDismissed if it was
	// already in the requested state.
	Dismiss(ctx context.Context, jobID string, reset bool) error

	// Exists reports whether jobID currently has a live (non-expired)
	// record, regardless of realm.
	Exists(ctx context.Context, jobID string) (bool, error)

	// Delete removes a record outright (used by the executor's Dismiss
	// once the job has been marked dismissed).
	Delete(ctx context.Context, jobID string) error
}

// Locker provides the distributed-lock primitive the executor's
// Dismiss path and the worker's cleanup-batch sweep serialize on.
type Locker interface {
	// Lock acquires name, blocking up to timeout. The returned unlock
	// releases it; callers must invoke it exactly once.
	Lock(ctx context.Context, name string, timeout time.Duration) (unlock func(), err error)
}
