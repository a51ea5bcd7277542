// Package executor implements the client side of the platform: the
// component the HTTP gateway calls to submit executions, poll status,
// dismiss jobs, and fetch results/logs/files, by coordinating the
// broker, the job registry, and the result store. It generalizes the
// teacher's Worker/Puller relationship (pull-dispatch-complete)
// upside down — the executor is a pure client of those three
// collaborators — mirroring executor.py's _ExecutorBase.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/romanqed/qjazz/broker"
	"github.com/romanqed/qjazz/internal"
	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/process"
	"github.com/romanqed/qjazz/registry"
	"github.com/romanqed/qjazz/resultstore"
)

var (
	// ErrServiceNotAvailable is returned when no destination answers
	// for a service.
	ErrServiceNotAvailable = broker.ErrServiceNotAvailable

	// ErrJobNotFound is returned when a job ID has no visible record.
	ErrJobNotFound = errors.New("executor: job not found")

	// ErrAlreadyDismissed is returned by Dismiss for an already
	// dismissed job.
	ErrAlreadyDismissed = errors.New("executor: job already dismissed")

	// ErrProcessNotFound is returned when a process ID is unknown to
	// every reachable destination of its service.
	ErrProcessNotFound = errors.New("executor: process not found")
)

// Presence is one worker instance's self-reported identity, refreshed
// by the periodic presence broadcast.
type Presence struct {
	Destination string
	Service     string
	// ResultExpires is the worker's result retention in whole seconds,
	// as sent in its presence reply.
	ResultExpires int64
}

// Config configures an Executor (spec §6 Executor configuration).
type Config struct {
	// MessageExpirationTimeout is the default pending timeout applied
	// to an execution message waiting on queue (section "Broker
	// protocol").
	MessageExpirationTimeout time.Duration

	// UpdateInterval controls how often presence is refreshed.
	UpdateInterval time.Duration

	// DismissTimeout bounds how long Dismiss waits to acquire the
	// per-job lock.
	DismissTimeout time.Duration

	// RevokeTimeout bounds how long Dismiss waits for the revoke RPC
	// to be acknowledged by a worker.
	RevokeTimeout time.Duration

	// InspectTimeout bounds Files/LogDetails/DownloadURL/Jobs inspect
	// calls.
	InspectTimeout time.Duration
}

type serviceInfo struct {
	destinations  []string
	resultExpires time.Duration
}

// Executor is the stateful client coordinating broker, registry, and
// result store.
type Executor struct {
	broker  broker.Broker
	reg     registry.Store
	locker  registry.Locker
	results resultstore.Store
	cfg     Config
	log     *slog.Logger

	mu       sync.RWMutex
	services map[string]serviceInfo

	updater internal.TimerTask
	lc      internal.Lifecycle
}

// New creates an Executor. Call Start to begin presence refresh.
func New(b broker.Broker, reg registry.Store, locker registry.Locker, results resultstore.Store, cfg Config, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		broker:   b,
		reg:      reg,
		locker:   locker,
		results:  results,
		cfg:      cfg,
		log:      log,
		services: make(map[string]serviceInfo),
	}
}

// Start begins the periodic presence refresh loop.
func (e *Executor) Start(ctx context.Context) error {
	if err := e.lc.TryStart(); err != nil {
		return err
	}
	e.updater.Start(ctx, func(ctx context.Context) {
		if err := e.UpdateServices(ctx); err != nil {
			e.log.Warn("presence update failed", "err", err)
		}
	}, e.cfg.UpdateInterval)
	return nil
}

// Stop halts the presence refresh loop.
func (e *Executor) Stop(timeout time.Duration) error {
	return e.lc.TryStop(timeout, func() internal.DoneChan { return e.updater.Stop() })
}

// UpdateServices broadcasts a presence inspect command to every known
// destination and rebuilds the service -> destinations index.
func (e *Executor) UpdateServices(ctx context.Context) error {
	destinations := e.broker.Destinations()
	if len(destinations) == 0 {
		return nil
	}
	replies, err := e.broker.Inspect(ctx, "presence", destinations, true, nil, e.cfg.InspectTimeout)
	if err != nil {
		return err
	}
	services := make(map[string]serviceInfo)
	for dest, raw := range replies {
		var p Presence
		if err := json.Unmarshal(raw, &p); err != nil {
			e.log.Warn("bad presence reply", "destination", dest, "err", err)
			continue
		}
		info := services[p.Service]
		info.destinations = append(info.destinations, dest)
		if info.resultExpires == 0 {
			info.resultExpires = time.Duration(p.ResultExpires) * time.Second
		}
		services[p.Service] = info
	}
	e.mu.Lock()
	e.services = services
	e.mu.Unlock()
	return nil
}

// Destinations returns the current known destinations for service.
func (e *Executor) Destinations(service string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.services[service].destinations
}

// Services returns the names of every service with at least one live
// presence, for the gateway's "/services/" listing.
func (e *Executor) Services() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.services))
	for name := range e.services {
		out = append(out, name)
	}
	return out
}

func (e *Executor) destinationsOrErr(service string) ([]string, error) {
	dests := e.Destinations(service)
	if len(dests) == 0 {
		return nil, fmt.Errorf("%s: %w", service, ErrServiceNotAvailable)
	}
	return dests, nil
}

// ExecuteParams is the input to Execute.
type ExecuteParams struct {
	Service     string
	ProcessID   string
	Request     process.Request
	ProjectPath string
	Realm       string
	Tag         string

	// PendingTimeout overrides Config.MessageExpirationTimeout for this
	// call when non-zero.
	PendingTimeout time.Duration

	// Priority is forwarded to the broker; the caller is responsible
	// for only setting it for admin realms (spec §4.4 "Priority is
	// applied only for admin realms").
	Priority int
}

// Execute submits a new job run (spec §4.1 steps 1-5): it enqueues the
// task on the service's queue, then registers the job record and its
// pending result-store entry under the broker-assigned job ID.
func (e *Executor) Execute(ctx context.Context, p ExecuteParams) (*job.JobStatus, error) {
	e.mu.RLock()
	info, ok := e.services[p.Service]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.Service, ErrServiceNotAvailable)
	}

	pendingTimeout := p.PendingTimeout
	if pendingTimeout == 0 {
		pendingTimeout = e.cfg.MessageExpirationTimeout
	}
	if pendingTimeout > info.resultExpires && info.resultExpires > 0 {
		pendingTimeout = info.resultExpires
	}

	created := time.Now().UTC()
	requestBody, err := json.Marshal(p.Request)
	if err != nil {
		return nil, err
	}
	runConfig := job.RunConfig{
		Ident:       p.ProcessID,
		Request:     requestBody,
		ProjectPath: p.ProjectPath,
	}
	runConfigBody, err := json.Marshal(runConfig)
	if err != nil {
		return nil, err
	}
	meta := job.Meta{
		Created:   created,
		Realm:     p.Realm,
		Service:   p.Service,
		ProcessID: p.ProcessID,
		Expires:   int(info.resultExpires.Seconds()),
		Tag:       p.Tag,
	}
	metaBody, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	kwargs := map[string]json.RawMessage{
		"__meta__":        metaBody,
		"__run_config__":  runConfigBody,
	}
	jobID, err := e.broker.Enqueue(ctx, "qjazz."+p.Service, "process_execute", kwargs, broker.EnqueueOptions{
		Expiration: pendingTimeout,
		Priority:   p.Priority,
	})
	if err != nil {
		return nil, err
	}

	rec := registry.Record{
		JobID:          jobID,
		Service:        p.Service,
		Realm:          p.Realm,
		ProcessID:      p.ProcessID,
		Created:        created,
		PendingTimeout: pendingTimeout,
		Tag:            p.Tag,
		ExpiresAt:      created.Add(info.resultExpires),
	}
	if err := e.reg.Register(ctx, rec); err != nil {
		return nil, err
	}
	if err := e.results.Create(ctx, jobID, rec.ExpiresAt); err != nil {
		return nil, err
	}

	return &job.JobStatus{
		JobID:     jobID,
		ProcessID: p.ProcessID,
		Status:    job.Pending,
		Created:   created,
		Tag:       p.Tag,
	}, nil
}
