package httpapi

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CrossOriginConfig mirrors the gateway's http.cross_origin
// configuration key.
type CrossOriginConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	AllowCredentials bool
}

// CORSMiddleware builds the go-chi/cors middleware from cfg. An empty
// AllowedOrigins is passed through as is, which go-chi/cors treats as
// allowing every origin; NewRouter installs this middleware only when
// at least one origin is configured.
func CORSMiddleware(cfg CrossOriginConfig) func(http.Handler) http.Handler {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodHead, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Accept", "Content-Type", "Authorization", JobRealmHeader, "Prefer"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"X-Job-Id", "X-Job-Realm", "Location"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           300,
	})
}
