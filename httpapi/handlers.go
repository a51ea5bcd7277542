package httpapi

import (
	"net/http"

	"github.com/romanqed/qjazz/job"
)

// handlers groups the gateway's route implementations behind the
// shared Config, the same structure arkeep-io-arkeep uses for its
// per-resource handler types constructed in NewRouter.
type handlers struct {
	cfg Config
}

func (h *handlers) service(r *http.Request) string {
	if svc := h.cfg.Policy.GetService(r); svc != "" {
		return svc
	}
	return h.cfg.DefaultService
}

// landingLinks describes the root "/" response: links only, per spec.
type landingLinks struct {
	Links []job.Link `json:"links"`
}

func (h *handlers) landing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, landingLinks{Links: []job.Link{
		{Href: "/processes/", Rel: "processes"},
		{Href: "/jobs/", Rel: "jobs"},
		{Href: "/services/", Rel: "services"},
		{Href: "/api", Rel: "service-desc"},
	}})
}

func (h *handlers) openapi(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info": map[string]string{
			"title":   "qjazz processes",
			"version": "1",
		},
	})
}

func (h *handlers) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": h.cfg.Executor.Services()})
}
