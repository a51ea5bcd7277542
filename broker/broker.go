// Package broker models the external message-broker substrate the
// executor and worker communicate through: a set of FIFO task queues
// plus a control/inspect RPC with per-destination fan-out and reply
// aggregation (spec "External Interfaces — Broker protocol").
//
// The broker itself — RabbitMQ, a celery-compatible transport, or
// anything else providing the same queue and RPC semantics — is
// explicitly out of scope for this module; only the interface the rest
// of the system depends on lives here, plus one concrete in-process
// implementation under broker/local used for tests and single-binary
// deployments.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrServiceNotAvailable is returned when a command targets a
	// service with no known destination.
	ErrServiceNotAvailable = errors.New("service not available")

	// ErrUnreachableDestination is returned when an inspect/control
	// command receives no reply within its deadline.
	ErrUnreachableDestination = errors.New("unreachable destination")
)

// EnqueueOptions carries the publish-time parameters of a task.
type EnqueueOptions struct {
	// Expiration is the maximum time the task may wait on the queue
	// before it is dropped (the pending timeout).
	Expiration time.Duration

	// Countdown delays eligibility for delivery by this duration.
	Countdown time.Duration

	// Priority is applied only for realms allowed to set it (admin
	// realms); 0 is the default priority band.
	Priority int
}

// Task is a unit of work delivered to exactly one worker instance.
type Task struct {
	ID     string
	Name   string
	Queue  string
	Kwargs map[string]json.RawMessage
}

// Broker is the control-plane contract between the executor and the
// worker pool for one logical deployment.
type Broker interface {
	// Enqueue publishes a task onto queue, returning its assigned task
	// ID. The ID doubles as the job ID throughout the rest of the
	// system.
	Enqueue(ctx context.Context, queue, name string, kwargs map[string]json.RawMessage, opts EnqueueOptions) (string, error)

	// Inspect sends an inspect/control command to destinations and
	// collects replies keyed by destination. If broadcast is false,
	// exactly one destination is selected uniformly at random and the
	// returned map has at most one entry. Returns
	// ErrUnreachableDestination if no destination replies within
	// timeout, and ErrServiceNotAvailable if destinations is empty.
	Inspect(ctx context.Context, name string, destinations []string, broadcast bool, args map[string]any, timeout time.Duration) (map[string]json.RawMessage, error)

	// Revoke asks destinations to terminate task taskID, waiting up to
	// timeout for acknowledgement.
	Revoke(ctx context.Context, taskID string, destinations []string, timeout time.Duration) error

	// RegisterHandler exposes the addressed side of Inspect: fn is
	// invoked locally for inspect/control command name sent to this
	// destination.
	RegisterHandler(name string, fn HandlerFunc)

	// Consume delivers tasks published to queue to fn until ctx is
	// canceled. destination identifies this consumer instance for
	// addressed RPCs (presence, describe_process, ...).
	Consume(ctx context.Context, queue, destination string, fn ConsumeFunc) error

	// Destinations returns every destination name currently registered
	// via RegisterDestination, used for broadcast presence discovery.
	// Handlers added with RegisterHandler alone name no destination.
	Destinations() []string
}

// HandlerFunc answers one inspect/control command addressed to this
// destination.
type HandlerFunc func(ctx context.Context, args map[string]any) (json.RawMessage, error)

// ConsumeFunc processes one delivered task. A nil error acknowledges
// the task; any error leaves it for the broker's own redelivery policy.
type ConsumeFunc func(ctx context.Context, task Task) error
