package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the OGC-API-Processes route table (spec §4.4) on
// chi, grounded on arkeep-io-arkeep's router.go layout: global
// middleware first, then route groups distinguishing public routes
// from realm-scoped ones.
func NewRouter(cfg Config) http.Handler {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Log))
	r.Use(middleware.Recoverer)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(cfg.CORS))
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	h := &handlers{cfg: cfg}

	r.Get("/", h.landing)
	r.Get("/api", h.openapi)

	r.Get("/services/", h.listServices)

	r.Group(func(r chi.Router) {
		r.Use(JobRealmExecute(cfg.RealmEnabled, cfg.AdminTokens))
		r.Get("/processes/", h.listProcesses)
		r.Get("/processes/{id}", h.describeProcess)
		r.Post("/processes/{id}/execution", h.execute)
	})

	r.Group(func(r chi.Router) {
		r.Use(JobRealmAccess(cfg.RealmEnabled, cfg.AdminTokens))
		r.Get("/jobs/", h.listJobs)
		r.Get("/jobs/{id}", h.jobStatus)
		r.Delete("/jobs/{id}", h.dismissJob)
		r.Get("/jobs/{id}/results", h.jobResults)
		r.Get("/jobs/{id}/log", h.jobLog)
		r.Get("/jobs/{id}/log/stream", h.jobLogStream)
		r.Get("/jobs/{id}/files/", h.jobFiles)
		r.Get("/jobs/{id}/files/{resource}", h.downloadFile)
		r.Head("/jobs/{id}/files/{resource}", h.headFile)
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", metricsHandler())
	}

	return r
}
