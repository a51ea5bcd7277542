package sql

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Sweep deletes registry rows whose TTL has elapsed, standing in for
// the Redis EXPIREAT semantics the record layout is keyed for. Nothing
// in this module schedules it; reads already skip expired rows by
// their expires_at, so an unswept row is invisible but still stored.
func Sweep(ctx context.Context, db *bun.DB) (int64, error) {
	res, err := db.NewDelete().
		Model((*recordModel)(nil)).
		Where("expires_at <= ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
