// Package httpapi implements the OGC-API-Processes HTTP gateway: the
// chi-routed surface translating REST calls into executor calls,
// grounded on arkeep-io-arkeep's server/internal/api router/middleware
// layout (Chi + zap-backed request logging + JSON envelope helpers)
// generalized to the OGC problem-details error shape.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/romanqed/qjazz/executor"
	"github.com/romanqed/qjazz/registry"
	"github.com/romanqed/qjazz/resultstore"
)

// problem is the OGC-API error envelope: {"message": ..., "details"?: ...}.
type problem struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeProblem(w http.ResponseWriter, status int, message string, details string) {
	writeJSON(w, status, problem{Message: message, Details: details})
}

// writeError maps a domain error to its OGC-API status code and
// problem body (spec §7 error taxonomy).
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrJobNotFound), errors.Is(err, registry.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "job not found", "")
	case errors.Is(err, executor.ErrProcessNotFound):
		writeProblem(w, http.StatusNotFound, "process not found", "")
	case errors.Is(err, executor.ErrAlreadyDismissed):
		writeProblem(w, http.StatusConflict, "job already dismissed", "")
	case errors.Is(err, executor.ErrServiceNotAvailable):
		writeProblem(w, http.StatusServiceUnavailable, "Service not known", "")
	case errors.Is(err, resultstore.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "result not found", "")
	case errors.Is(err, ErrBadRealm):
		writeProblem(w, http.StatusBadRequest, "invalid realm", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "internal error", "")
	}
}
