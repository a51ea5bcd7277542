package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// logStreamUpgrader performs the HTTP to WebSocket upgrade for
// /jobs/{id}/log/stream. Origin validation is left to whatever reverse
// proxy fronts the gateway, mirroring arkeep-io-arkeep's ws upgrader.
var logStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const logStreamPollInterval = 500 * time.Millisecond

// jobLogStream supplements the static GET /jobs/{id}/log with a live
// tail: it polls the same LogDetails inspect command jobLog uses and
// pushes a frame whenever the log body changes, until the job reaches
// a terminal status or the client disconnects.
func (h *handlers) jobLogStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	realm := RealmFromContext(r.Context())

	conn, err := logStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.cfg.Log.Warn("log stream upgrade failed", "job_id", jobID, "err", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(logStreamPollInterval)
	defer ticker.Stop()

	var last string
	for {
		logBody, err := h.cfg.Executor.LogDetails(r.Context(), jobID, realm)
		if err != nil {
			h.cfg.Log.Warn("log stream: fetching log failed", "job_id", jobID, "err", err)
			return
		}
		if string(logBody) != last {
			last = string(logBody)
			if err := conn.WriteMessage(websocket.TextMessage, logBody); err != nil {
				return
			}
		}

		status, err := h.cfg.Executor.JobStatus(r.Context(), jobID, realm, false)
		if err == nil && status.Status.Terminal() {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
