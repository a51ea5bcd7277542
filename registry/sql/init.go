package sql

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
)

func createTable(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*recordModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func createServiceRealmIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*recordModel)(nil)).
		Index("idx_registry_service_realm").
		Column("service", "realm").
		IfNotExists().
		Exec(ctx)
	return err
}

func createExpiresIndex(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateIndex().
		Model((*recordModel)(nil)).
		Index("idx_registry_expires").
		Column("expires_at").
		IfNotExists().
		Exec(ctx)
	return err
}

func initDB(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTable(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createServiceRealmIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createExpiresIndex(ctx, tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// InitDB creates the registry_records table and its indexes inside a
// single transaction. It is idempotent.
func InitDB(ctx context.Context, db *bun.DB) error {
	return initDB(ctx, db)
}
