// Command qjazzd is the single-process reference deployment: it hosts
// one worker bound to the built-in demo catalogue, the executor that
// fronts it, and the HTTP gateway, all sharing the in-process broker.
// Grounded on arkeep-io-arkeep's cmd/server/main.go cobra root + run
// wiring.
package main

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	brokerlocal "github.com/romanqed/qjazz/broker/local"
	"github.com/romanqed/qjazz/callback"
	callbackhttp "github.com/romanqed/qjazz/callback/http"
	cfgpkg "github.com/romanqed/qjazz/config"
	"github.com/romanqed/qjazz/executor"
	"github.com/romanqed/qjazz/httpapi"
	"github.com/romanqed/qjazz/httpapi/accesspolicy"
	registrylocal "github.com/romanqed/qjazz/registry/local"
	registrysql "github.com/romanqed/qjazz/registry/sql"
	resultstoresql "github.com/romanqed/qjazz/resultstore/sql"
	storagelocal "github.com/romanqed/qjazz/storage/local"
	"github.com/romanqed/qjazz/worker"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "qjazzd",
		Short: "qjazzd runs the worker, executor, and HTTP gateway in one process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			if err := run(cmd.Context(), cfg); err != nil {
				return err
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("QJAZZ_CONFIG"), "path to a TOML configuration file")
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qjazzd %s (commit %s)\n", version, commit)
		},
	}
}

func run(ctx context.Context, cfg cfgpkg.Config) error {
	zlog, err := cfgpkg.BuildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer zlog.Sync() //nolint:errcheck
	log := slog.New(cfgpkg.NewSlogHandler(zlog))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := openDB(ctx, "qjazzd.db")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	reg := registrysql.NewStore(db)
	results := resultstoresql.NewStore(db)
	locker := registrylocal.NewLocker()

	store, err := storagelocal.New(cfg.Storage.Config["root"], cfg.Storage.Config["public_base"])
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}

	callbacks := map[string]callback.Handler{
		"http":  callbackhttp.New(),
		"https": callbackhttp.New(),
	}

	b := brokerlocal.New(cfg.Broker.QueueSize)

	wcfg := worker.Config{
		ServiceName:           cfg.Worker.ServiceName,
		Title:                 cfg.Worker.Title,
		Description:           cfg.Worker.Description,
		WorkDir:               cfg.Worker.WorkDir,
		Concurrency:           cfg.Worker.Concurrency,
		QueueSize:             cfg.Worker.QueueSize,
		CleanupInterval:       cfg.Worker.CleanupInterval,
		ReloadMonitor:         cfg.Worker.ReloadMonitor,
		HidePresenceVersions:  cfg.Worker.HidePresenceVersions,
		ResultExpires:         cfg.Broker.ResultExpires,
		CleanupLockTimeout:    cfg.Worker.CleanupLockTimeout,
		ProgressFlushInterval: cfg.Worker.ProgressFlushInterval,
	}
	dest := cfg.Worker.ServiceName + "-" + uuid.NewString()[:8]
	w := worker.New(dest, wcfg, b, reg, locker, results, store, callbacks, demoCatalogue(), log.With("component", "worker"))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	execCfg := executor.Config{
		MessageExpirationTimeout: cfg.Executor.MessageExpirationTimeout,
		UpdateInterval:           cfg.Executor.UpdateInterval,
		DismissTimeout:           cfg.Executor.DismissTimeout,
		RevokeTimeout:            cfg.Executor.RevokeTimeout,
		InspectTimeout:           cfg.Executor.InspectTimeout,
	}
	exec := executor.New(b, reg, locker, results, execCfg, log.With("component", "executor"))
	if err := exec.Start(ctx); err != nil {
		return fmt.Errorf("starting executor: %w", err)
	}
	// Give the first presence broadcast a moment to land before the
	// gateway starts serving, so an immediate request does not race
	// an empty service table.
	if err := exec.UpdateServices(ctx); err != nil {
		log.Warn("initial presence update failed", "err", err)
	}

	var policy accesspolicy.AccessPolicy = accesspolicy.AllowAll{}
	if cfg.AccessPolicy.PolicyClass == "jwt" {
		policy = accesspolicy.NewJWTPolicy(
			[]byte(cfg.AccessPolicy.Config["secret"]),
			cfg.AccessPolicy.Config["issuer"],
			cfg.AccessPolicy.Config["prefix"],
		)
	}

	metrics := httpapi.NewMetrics(prometheus.DefaultRegisterer)
	srv := httpapi.NewServer(httpapi.ServerOptions{
		Listen:      cfg.HTTP.Listen,
		TLSCertFile: cfg.HTTP.TLSCertFile,
		TLSKeyFile:  cfg.HTTP.TLSKeyFile,
	}, httpapi.Config{
		Executor:       exec,
		Policy:         policy,
		Log:            log.With("component", "http"),
		RealmEnabled:   cfg.JobRealm.Enabled,
		AdminTokens:    cfg.JobRealm.AdminTokens,
		DefaultService: cfg.Worker.ServiceName,
		CORS:           httpapi.CrossOriginConfig{AllowedOrigins: cfg.HTTP.CrossOrigin},
		Metrics:        metrics,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTP.Listen)
		if err := srv.ListenAndServe(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("http server error", "err", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", "err", err)
	}
	if err := w.Stop(10 * time.Second); err != nil {
		log.Warn("worker shutdown error", "err", err)
	}
	if err := exec.Stop(5 * time.Second); err != nil {
		log.Warn("executor shutdown error", "err", err)
	}
	return nil
}

func openDB(ctx context.Context, path string) (*bun.DB, error) {
	sqlDB, err := stdsql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := registrysql.InitDB(ctx, db); err != nil {
		return nil, err
	}
	if err := resultstoresql.InitDB(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}
