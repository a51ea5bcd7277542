package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) listProcesses(w http.ResponseWriter, r *http.Request) {
	service := h.service(r)
	if !h.cfg.Policy.ServicePermission(r, service) {
		writeProblem(w, http.StatusForbidden, "service permission denied", "")
		return
	}
	descriptors, err := h.cfg.Executor.Processes(r.Context(), service)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"processes": descriptors})
}

func (h *handlers) describeProcess(w http.ResponseWriter, r *http.Request) {
	service := h.service(r)
	processID := chi.URLParam(r, "id")
	if !h.cfg.Policy.ServicePermission(r, service) {
		writeProblem(w, http.StatusForbidden, "service permission denied", "")
		return
	}
	project := h.cfg.Policy.GetProject(r)
	descriptor, err := h.cfg.Executor.Describe(r.Context(), service, processID, project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	service := h.service(r)
	realm := RealmFromContext(r.Context())
	cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	jobs, next, err := h.cfg.Executor.Jobs(r.Context(), service, realm, cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "cursor": next})
}

func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	realm := RealmFromContext(r.Context())
	withDetails := r.URL.Query().Get("details") == "true"
	status, err := h.cfg.Executor.JobStatus(r.Context(), jobID, realm, withDetails)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) dismissJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	realm := RealmFromContext(r.Context())
	status, err := h.cfg.Executor.Dismiss(r.Context(), jobID, realm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) jobResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	realm := RealmFromContext(r.Context())
	results, err := h.cfg.Executor.Results(r.Context(), jobID, realm)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(results)
}

func (h *handlers) jobLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	realm := RealmFromContext(r.Context())
	logBody, err := h.cfg.Executor.LogDetails(r.Context(), jobID, realm)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(logBody)
}

func (h *handlers) jobFiles(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	realm := RealmFromContext(r.Context())
	files, err := h.cfg.Executor.Files(r.Context(), jobID, realm)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(files)
}
