package sql

import (
	"context"

	"github.com/uptrace/bun"
)

// InitDB creates the task_meta table and its expiry index.
func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*taskMetaModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().
		Model((*taskMetaModel)(nil)).
		Index("idx_task_meta_expires").
		Column("expires_at").
		IfNotExists().
		Exec(ctx)
	return err
}
