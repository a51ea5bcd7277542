package httpapi

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/romanqed/qjazz/executor"
	"github.com/romanqed/qjazz/httpapi/accesspolicy"
)

// Config assembles everything NewRouter/NewServer need, following
// arkeep-io-arkeep's RouterConfig pattern of a single dependency
// struct populated once in main.go.
type Config struct {
	Executor *executor.Executor
	Policy   accesspolicy.AccessPolicy
	Log      *slog.Logger

	RealmEnabled bool
	AdminTokens  []string

	// DefaultService is used when the access policy does not resolve a
	// concrete service for a request (single-service deployments).
	DefaultService string

	CORS CrossOriginConfig

	// ExternalBase holds the gateway's public base URL. No handler reads
	// it: Location headers and response hrefs are built as paths
	// relative to the server root.
	ExternalBase string

	// Download controls the /jobs/{id}/files/{resource} scheme dispatch.
	Download DownloadConfig

	Metrics *Metrics
}

// DownloadConfig controls streamed file downloads (spec §4.4 "Download
// streaming").
type DownloadConfig struct {
	AllowInsecureConnection bool
	InsecureSkipVerify      bool
	FileRoot                string
}

// Server is the HTTP gateway's process boundary: a *http.Server bound
// to the chi router built by NewRouter, with listen/TLS options
// matching spec §6 HTTPConfig.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// ServerOptions configures the listen address and optional TLS.
type ServerOptions struct {
	Listen       string
	TLSCertFile  string
	TLSKeyFile   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer builds the http.Server wrapping the gateway's router.
func NewServer(opts ServerOptions, cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 60 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 60 * time.Second
	}

	router := NewRouter(cfg)

	httpServer := &http.Server{
		Addr:         opts.Listen,
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	if opts.TLSCertFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Server{httpServer: httpServer, log: cfg.Log}
}

// ListenAndServe blocks serving HTTP (or HTTPS when TLS files were
// configured) until the server is shut down.
func (s *Server) ListenAndServe(certFile, keyFile string) error {
	s.log.Info("http gateway listening", "addr", s.httpServer.Addr)
	if certFile != "" {
		return s.httpServer.ListenAndServeTLS(certFile, keyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
