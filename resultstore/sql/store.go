// Package sql implements resultstore.Store over a bun-modeled SQL
// table, grounded on the teacher's sql.Pusher insert-then-update
// pattern (sql/pusher.go) generalized to a task progress/outcome
// record instead of a queued message envelope.
package sql

import (
	stdsql "database/sql"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/romanqed/qjazz/resultstore"
)

// Store is a SQL-backed resultstore.Store.
type Store struct {
	db *bun.DB
}

// NewStore creates a Store over an initialized *bun.DB.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Create implements resultstore.Store.
func (s *Store) Create(ctx context.Context, taskID string, expiresAt time.Time) error {
	now := time.Now()
	_, err := s.db.NewInsert().
		Model(&taskMetaModel{
			TaskID:    taskID,
			State:     resultstore.Pending,
			UpdatedAt: now,
			ExpiresAt: expiresAt,
		}).
		Exec(ctx)
	return err
}

// Get implements resultstore.Store.
func (s *Store) Get(ctx context.Context, taskID string) (*resultstore.Meta, error) {
	var m taskMetaModel
	err := s.db.NewSelect().
		Model(&m).
		Where("task_id = ?", taskID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, resultstore.ErrNotFound
		}
		return nil, err
	}
	return m.toMeta(), nil
}

func (s *Store) update(ctx context.Context, taskID string, apply func(q *bun.UpdateQuery) *bun.UpdateQuery) error {
	q := s.db.NewUpdate().
		Model((*taskMetaModel)(nil)).
		Set("updated_at = ?", time.Now()).
		Where("task_id = ?", taskID)
	q = apply(q)
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if rows == 0 {
		return resultstore.ErrNotFound
	}
	return nil
}

// MarkStarted implements resultstore.Store.
func (s *Store) MarkStarted(ctx context.Context, taskID string) error {
	now := time.Now()
	return s.update(ctx, taskID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("state = ?", resultstore.Started).Set("started = ?", now)
	})
}

// ReportProgress implements resultstore.Store.
func (s *Store) ReportProgress(ctx context.Context, taskID string, progress int, message string) error {
	return s.update(ctx, taskID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("state = ?", resultstore.Updated).
			Set("progress = ?", progress).
			Set("message = ?", message).
			Where("state NOT IN (?, ?, ?)", resultstore.Success, resultstore.Failure, resultstore.Revoked)
	})
}

// MarkSuccess implements resultstore.Store.
func (s *Store) MarkSuccess(ctx context.Context, taskID string, result json.RawMessage) error {
	now := time.Now()
	return s.update(ctx, taskID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("state = ?", resultstore.Success).
			Set("result = ?", result).
			Set("progress = ?", 100).
			Set("finished = ?", now)
	})
}

// MarkFailure implements resultstore.Store.
func (s *Store) MarkFailure(ctx context.Context, taskID string, exception string) error {
	now := time.Now()
	return s.update(ctx, taskID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.
			Set("state = ?", resultstore.Failure).
			Set("exception = ?", exception).
			Set("finished = ?", now)
	})
}

// MarkRevoked implements resultstore.Store.
func (s *Store) MarkRevoked(ctx context.Context, taskID string) error {
	now := time.Now()
	return s.update(ctx, taskID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("state = ?", resultstore.Revoked).Set("finished = ?", now)
	})
}

// Delete implements resultstore.Store.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.NewDelete().
		Model((*taskMetaModel)(nil)).
		Where("task_id = ?", taskID).
		Exec(ctx)
	return err
}
