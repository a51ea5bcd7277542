// Package http implements callback.Handler by POSTing a JSON body to
// the subscriber URL, retrying transient failures with the module's
// shared exponential backoff schedule before giving up and letting the
// caller log-and-swallow the error.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/romanqed/qjazz/internal"
	"github.com/romanqed/qjazz/job"
)

// Handler posts callback notifications over HTTP(S).
type Handler struct {
	Client  *http.Client
	Backoff internal.BackoffConfig
}

// New creates a Handler with sane defaults: a 10s client timeout and a
// backoff of up to 3 retries (4 attempts in all) starting at 200ms.
func New() *Handler {
	return &Handler{
		Client: &http.Client{Timeout: 10 * time.Second},
		Backoff: internal.BackoffConfig{
			MaxRetries:          3,
			InitialInterval:     200 * time.Millisecond,
			MaxInterval:         5 * time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.2,
		},
	}
}

type envelope struct {
	JobID   string          `json:"jobID"`
	Event   string          `json:"event"`
	Realm   string          `json:"realm,omitempty"`
	Service string          `json:"service"`
	Results json.RawMessage `json:"results,omitempty"`
}

func (h *Handler) post(ctx context.Context, url string, body envelope) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	bo := internal.Backoff{BackoffConfig: h.Backoff}
	var lastErr error
	for attempt := uint32(1); ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.Client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return nil
			}
			err = fmt.Errorf("callback: server returned %s", resp.Status)
		}
		lastErr = err
		delay, ok := bo.Next(attempt)
		if !ok {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// InProgress implements callback.Handler.
func (h *Handler) InProgress(ctx context.Context, url, jobID string, meta job.Meta) error {
	return h.post(ctx, url, envelope{JobID: jobID, Event: "in-progress", Realm: meta.Realm, Service: meta.Service})
}

// OnSuccess implements callback.Handler.
func (h *Handler) OnSuccess(ctx context.Context, url, jobID string, meta job.Meta, results json.RawMessage) error {
	return h.post(ctx, url, envelope{JobID: jobID, Event: "success", Realm: meta.Realm, Service: meta.Service, Results: results})
}

// OnFailure implements callback.Handler.
func (h *Handler) OnFailure(ctx context.Context, url, jobID string, meta job.Meta) error {
	return h.post(ctx, url, envelope{JobID: jobID, Event: "failure", Realm: meta.Realm, Service: meta.Service})
}
