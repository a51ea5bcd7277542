package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/romanqed/qjazz/executor"
	"github.com/romanqed/qjazz/job"
	"github.com/romanqed/qjazz/process"
)

const pollInterval = 200 * time.Millisecond

func (h *handlers) execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	processID := chi.URLParam(r, "id")
	service := h.service(r)
	project := h.cfg.Policy.GetProject(r)

	if !h.cfg.Policy.ExecutePermission(r, service, processID, project) {
		writeProblem(w, http.StatusForbidden, "execute permission denied", "")
		return
	}

	descriptor, err := h.cfg.Executor.Describe(ctx, service, processID, project)
	if err != nil {
		writeError(w, err)
		return
	}

	var request process.Request
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}

	realm := RealmFromContext(ctx)
	prefer := parsePrefer(r.Header.Get("Prefer"))

	priority := 0
	if prefer.Priority != nil && isAdminRealm(r, h.cfg.AdminTokens) {
		priority = *prefer.Priority
	}
	var pendingTimeout time.Duration
	if prefer.Delay != nil {
		pendingTimeout = time.Duration(*prefer.Delay) * time.Second
	}

	status, err := h.cfg.Executor.Execute(ctx, executor.ExecuteParams{
		Service:        service,
		ProcessID:      processID,
		Request:        request,
		ProjectPath:    project,
		Realm:          realm,
		PendingTimeout: pendingTimeout,
		Priority:       priority,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Job-Id", status.JobID)
	if realm != "" {
		w.Header().Set(JobRealmHeader, realm)
	}
	w.Header().Set("Location", "/jobs/"+status.JobID)

	canSync := slices.Contains(descriptor.JobControlOptions, process.SyncExecute)
	wantSync := !prefer.RespondAsync && prefer.Wait != nil && *prefer.Wait > 0
	if !canSync || !wantSync {
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(*prefer.Wait)*time.Second)
	defer cancel()

	final, err := pollUntilTerminal(waitCtx, h.cfg.Executor, status.JobID, realm)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			canAsync := len(descriptor.JobControlOptions) == 0 || slices.Contains(descriptor.JobControlOptions, process.AsyncExecute)
			if !canAsync {
				if _, dErr := h.cfg.Executor.Dismiss(ctx, status.JobID, realm); dErr != nil {
					h.cfg.Log.Warn("failed to dismiss timed-out sync job", "job_id", status.JobID, "err", dErr)
				}
				writeProblem(w, http.StatusGatewayTimeout, "job did not complete within wait", "")
				return
			}
			writeJSON(w, http.StatusAccepted, status)
			return
		}
		writeError(w, err)
		return
	}

	if final.Status == job.Successful {
		results, err := h.cfg.Executor.Results(ctx, status.JobID, realm)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(results)
		return
	}

	writeJSON(w, http.StatusOK, final)
}

func pollUntilTerminal(ctx context.Context, exec *executor.Executor, jobID, realm string) (*job.JobStatus, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		status, err := exec.JobStatus(ctx, jobID, realm, false)
		if err != nil {
			return nil, err
		}
		if status.Status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isAdminRealm(r *http.Request, adminTokens []string) bool {
	header := r.Header.Get(JobRealmHeader)
	return header != "" && slices.Contains(adminTokens, header)
}
