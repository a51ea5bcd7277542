package worker

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	"github.com/romanqed/qjazz/registry"
	registrylocal "github.com/romanqed/qjazz/registry/local"
	registrysql "github.com/romanqed/qjazz/registry/sql"
)

func newCleanupTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := registrysql.InitDB(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestCleanWorkerSweepRemovesExpiredJobDir(t *testing.T) {
	workDir := t.TempDir()

	expiredJobDir := filepath.Join(workDir, "job-expired")
	if err := os.MkdirAll(expiredJobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(expiredJobDir, ".job-expire-demo"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	liveJobDir := filepath.Join(workDir, "job-live")
	if err := os.MkdirAll(liveJobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(liveJobDir, ".job-expire-demo"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	db := newCleanupTestDB(t)
	reg := registrysql.NewStore(db)
	// job-live still has a registry record, job-expired does not.
	now := time.Now()
	rec := registry.Record{
		JobID:     "job-live",
		Service:   "demo",
		ProcessID: "echo",
		Created:   now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := reg.Register(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	c := &CleanWorker{
		ServiceName: "demo",
		WorkDir:     workDir,
		Registry:    reg,
		Locker:      registrylocal.NewLocker(),
		Interval:    time.Hour,
		LockTimeout: time.Second,
	}

	if err := c.sweep(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(expiredJobDir); !os.IsNotExist(err) {
		t.Fatalf("expected expired job directory removed, stat err: %v", err)
	}
	if _, err := os.Stat(liveJobDir); err != nil {
		t.Fatalf("expected live job directory to survive, got err: %v", err)
	}
}
