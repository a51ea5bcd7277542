// Package storage abstracts the persistence of a job's output
// artifacts after its working directory has been finalized: moving
// files to their durable location, producing download links for them,
// and reclaiming them once the job record expires.
package storage

import (
	"context"
	"time"

	"github.com/romanqed/qjazz/job"
)

// Storage is the artifact-persistence contract a worker depends on.
type Storage interface {
	// BeforeCreateProcess is invoked by the worker pool slot that picks
	// up a job, before that job begins executing concurrently with
	// others; it is the hook
	// point for dropping resources (such as open file handles) that are
	// unsafe to share across concurrent goroutines, the closest
	// idiomatic analogue of the fork-time resource reset the teacher's
	// process model assumed.
	BeforeCreateProcess()

	// Move persists the named files produced under workDir as jobID's
	// durable artifacts.
	Move(ctx context.Context, jobID string, files []string, workDir string) error

	// DownloadURL returns a fetchable link for resource belonging to
	// jobID, valid for expires.
	DownloadURL(ctx context.Context, jobID, resource, workDir string, expires time.Duration) (job.Link, error)

	// Remove reclaims jobID's persisted artifacts. The job's working
	// directory under workDir is removed by the caller, not by Remove.
	Remove(ctx context.Context, jobID, workDir string) error
}
