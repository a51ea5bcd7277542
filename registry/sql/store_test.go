package sql_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	"github.com/romanqed/qjazz/registry"
	gsql "github.com/romanqed/qjazz/registry/sql"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1) // important for sqlite
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	if err := gsql.InitDB(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func newRecord(jobID, service, realm string) registry.Record {
	now := time.Now()
	return registry.Record{
		JobID:     jobID,
		Service:   service,
		Realm:     realm,
		ProcessID: "echo",
		Created:   now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestRegisterAndFindJob(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	rec := newRecord("job-1", "demo", "realm-a")
	if err := store.Register(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := store.FindJob(ctx, "job-1", "realm-a")
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessID != "echo" {
		t.Fatalf("expected process echo, got %s", got.ProcessID)
	}
}

// TestFindJobRealmIsolation exercises I5: a record registered under one
// realm must not be visible when looked up under a different realm.
func TestFindJobRealmIsolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	if err := store.Register(ctx, newRecord("job-1", "demo", "realm-a")); err != nil {
		t.Fatal(err)
	}

	if _, err := store.FindJob(ctx, "job-1", "realm-b"); err != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound across realms, got %v", err)
	}

	// Unscoped (admin) lookup sees it regardless of realm.
	if _, err := store.FindJob(ctx, "job-1", ""); err != nil {
		t.Fatalf("expected unscoped lookup to succeed, got %v", err)
	}
}

func TestFindJobExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	rec := newRecord("job-1", "demo", "realm-a")
	rec.ExpiresAt = time.Now().Add(-time.Minute)
	if err := store.Register(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if _, err := store.FindJob(ctx, "job-1", "realm-a"); err != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired record, got %v", err)
	}
}

func TestFindKeysPagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	for i := 0; i < 5; i++ {
		jobID := "job-" + string(rune('a'+i))
		if err := store.Register(ctx, newRecord(jobID, "demo", "realm-a")); err != nil {
			t.Fatal(err)
		}
	}

	next, page, err := store.FindKeys(ctx, "demo", "realm-a", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if next != 2 {
		t.Fatalf("expected next cursor 2, got %d", next)
	}

	_, rest, err := store.FindKeys(ctx, "demo", "realm-a", next, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected remaining 3 records, got %d", len(rest))
	}
}

// TestDismissTwiceFails exercises I2: dismissing an already-dismissed
// job returns ErrAlreadyDismissed rather than silently succeeding.
func TestDismissTwiceFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	if err := store.Register(ctx, newRecord("job-1", "demo", "realm-a")); err != nil {
		t.Fatal(err)
	}

	if err := store.Dismiss(ctx, "job-1", false); err != nil {
		t.Fatal(err)
	}
	if err := store.Dismiss(ctx, "job-1", false); err != registry.ErrAlreadyDismissed {
		t.Fatalf("expected ErrAlreadyDismissed, got %v", err)
	}
}

func TestDismissUnknownJob(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	if err := store.Dismiss(ctx, "nope", false); err != registry.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	if err := store.Register(ctx, newRecord("job-1", "demo", "realm-a")); err != nil {
		t.Fatal(err)
	}

	ok, err := store.Exists(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected record to exist")
	}

	if err := store.Delete(ctx, "job-1"); err != nil {
		t.Fatal(err)
	}

	ok, err = store.Exists(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected record to be gone after delete")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := gsql.NewStore(db)

	live := newRecord("job-live", "demo", "realm-a")
	expired := newRecord("job-expired", "demo", "realm-a")
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	if err := store.Register(ctx, live); err != nil {
		t.Fatal(err)
	}
	if err := store.Register(ctx, expired); err != nil {
		t.Fatal(err)
	}

	n, err := gsql.Sweep(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row swept, got %d", n)
	}

	if _, err := store.FindJob(ctx, "job-expired", ""); err != registry.ErrNotFound {
		t.Fatalf("expected expired record gone, got %v", err)
	}
}
