// Package accesspolicy implements the gateway's pluggable authorization
// boundary, generalizing accesspolicy.py's AccessPolicy Protocol into a
// Go interface the httpapi router consults before every service lookup
// and process execution.
package accesspolicy

import "net/http"

// AccessPolicy is the gateway's authorization boundary: every route
// that resolves a service or executes a process consults it before
// calling into the executor.
type AccessPolicy interface {
	// ServicePermission reports whether r may access service at all
	// (list processes, read job status, ...).
	ServicePermission(r *http.Request, service string) bool

	// ExecutePermission reports whether r may execute processID on
	// service, optionally scoped to project.
	ExecutePermission(r *http.Request, service, processID, project string) bool

	// GetService resolves the service name implied by r (path prefix,
	// claim, or header, depending on the implementation).
	GetService(r *http.Request) string

	// GetProject resolves the project path implied by r, or "" if
	// none applies.
	GetProject(r *http.Request) string

	// Prefix returns the path prefix this policy expects routes to be
	// mounted under, used when formatting hrefs.
	Prefix() string

	// FormatPath renders path for service/project, optionally
	// appending query, used when building response links.
	FormatPath(r *http.Request, path, service, project, query string) string
}
