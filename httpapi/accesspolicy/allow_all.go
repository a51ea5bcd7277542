package accesspolicy

import "net/http"

// AllowAll is a permissive AccessPolicy: every service/execute
// permission check passes and paths are returned unmodified. It mirrors
// accesspolicy.py's DummyAccessPolicy in shape, but grants rather than
// denies, for use in tests and single-tenant deployments that front
// the gateway with their own reverse-proxy auth.
type AllowAll struct{}

func (AllowAll) ServicePermission(r *http.Request, service string) bool { return true }

func (AllowAll) ExecutePermission(r *http.Request, service, processID, project string) bool {
	return true
}

func (AllowAll) GetService(r *http.Request) string { return "" }

func (AllowAll) GetProject(r *http.Request) string { return "" }

func (AllowAll) Prefix() string { return "" }

func (AllowAll) FormatPath(r *http.Request, path, service, project, query string) string {
	if query != "" {
		return path + "?" + query
	}
	return path
}
