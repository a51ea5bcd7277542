// Command qjazz-gateway runs the executor and HTTP gateway without an
// embedded worker, for deployments that front a separately-run worker
// fleet. The in-process broker implementation means no external
// worker can currently attach to this binary's broker instance — this
// mode exists to keep the gateway/worker process boundary addressable
// by name ahead of a networked broker.Broker implementation, and is
// otherwise only useful for exercising 503 "service not available"
// behavior (spec test scenario 4) with zero workers present.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	brokerlocal "github.com/romanqed/qjazz/broker/local"
	cfgpkg "github.com/romanqed/qjazz/config"
	"github.com/romanqed/qjazz/executor"
	"github.com/romanqed/qjazz/httpapi"
	"github.com/romanqed/qjazz/httpapi/accesspolicy"
	registrylocal "github.com/romanqed/qjazz/registry/local"
	registrysql "github.com/romanqed/qjazz/registry/sql"
	resultstoresql "github.com/romanqed/qjazz/resultstore/sql"
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
		Use:   "qjazz-gateway",
		Short: "qjazz-gateway runs the OGC-API-Processes HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("QJAZZ_CONFIG"), "path to a TOML configuration file")
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qjazz-gateway %s (commit %s)\n", version, commit)
		},
	})
	return root
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

	db, err := openDB(ctx, "qjazz-gateway.db")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	reg := registrysql.NewStore(db)
	results := resultstoresql.NewStore(db)
	locker := registrylocal.NewLocker()
	b := brokerlocal.New(cfg.Broker.QueueSize)

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
