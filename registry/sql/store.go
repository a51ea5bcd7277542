// Package sql implements registry.Store over a bun-modeled SQL table,
// generalizing the teacher's sql.Puller/Observer/Cleaner atomic
// UPDATE ... RETURNING pattern from a lease queue into a realm-scoped
// job ownership index with TTL expiry.
package sql

import (
	stdsql "database/sql"
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/romanqed/qjazz/registry"
)

// Store is a SQL-backed registry.Store.
type Store struct {
	db *bun.DB
}

// NewStore creates a Store over an initialized *bun.DB. Call InitDB
// first to ensure the schema exists.
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Register implements registry.Store.
func (s *Store) Register(ctx context.Context, rec registry.Record) error {
	_, err := s.db.NewInsert().
		Model(fromRecord(rec)).
		Exec(ctx)
	return err
}

// FindJob implements registry.Store.
func (s *Store) FindJob(ctx context.Context, jobID, realm string) (*registry.Record, error) {
	var m recordModel
	query := s.db.NewSelect().
		Model(&m).
		Where("job_id = ?", jobID).
		Where("expires_at > ?", time.Now())
	if realm != "" {
		query = query.Where("realm = ?", realm)
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}
	rec := m.toRecord()
	return &rec, nil
}

// FindKeys implements registry.Store.
func (s *Store) FindKeys(ctx context.Context, service, realm string, cursor, limit int) (int, []registry.Record, error) {
	var models []recordModel
	query := s.db.NewSelect().
		Model(&models).
		Where("expires_at > ?", time.Now()).
		Order("job_id ASC").
		Offset(cursor).
		Limit(limit + 1)
	if service != "" {
		query = query.Where("service = ?", service)
	}
	if realm != "" {
		query = query.Where("realm = ?", realm)
	}
	if err := query.Scan(ctx); err != nil {
		return 0, nil, err
	}
	next := 0
	if len(models) > limit {
		models = models[:limit]
		next = cursor + limit
	}
	items := make([]registry.Record, len(models))
	for i := range models {
		items[i] = models[i].toRecord()
	}
	return next, items, nil
}

// Dismiss implements registry.Store using an atomic UPDATE guarded by
// the current dismissed value; when no row changes, an Exists lookup
// tells an unknown job from an already dismissed one.
func (s *Store) Dismiss(ctx context.Context, jobID string, reset bool) error {
	res, err := s.db.NewUpdate().
		Model((*recordModel)(nil)).
		Set("dismissed = ?", !reset).
		Where("job_id = ?", jobID).
		Where("dismissed = ?", reset).
		Exec(ctx)
	if err != nil {
		return err
	}
	if isAffected(res) {
		return nil
	}
	exists, err := s.Exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return registry.ErrNotFound
	}
	return registry.ErrAlreadyDismissed
}

// Exists implements registry.Store.
func (s *Store) Exists(ctx context.Context, jobID string) (bool, error) {
	count, err := s.db.NewSelect().
		Model((*recordModel)(nil)).
		Where("job_id = ?", jobID).
		Where("expires_at > ?", time.Now()).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete implements registry.Store.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	_, err := s.db.NewDelete().
		Model((*recordModel)(nil)).
		Where("job_id = ?", jobID).
		Exec(ctx)
	return err
}
