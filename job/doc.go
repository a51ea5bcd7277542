// Package job defines the OGC-API-Processes job lifecycle: the status
// enum, the reported job status value, and the meta envelope attached to
// every task dispatched through the broker.
//
// Unlike a generic queue delivery state (pending/processing/done/dead), the
// states here are the ones a client observes through the HTTP gateway:
// pending, accepted, running, successful, failed and dismissed. pending is
// this system's own extension — a task enqueued but not yet reserved by any
// worker.
//
// Job status values are composed by the executor from two independent
// sources of truth (the registry and the result store) and are therefore
// always treated as read-only snapshots; nothing in this package mutates
// queue or storage state.
package job
