// Package postgres provides a persisted locator index backed by
// PostgreSQL. The index is advisory: the service verifies every hit
// against the filesystem and falls back to a directory scan on a miss,
// so a stale or unavailable index only costs time, never correctness.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Index implements simplepacs.LocatorIndex using PostgreSQL.
type Index struct {
	db DBTX
}

// New creates a new PostgreSQL locator index.
func New(db DBTX) *Index {
	return &Index{db: db}
}

// NewWithPool creates a new PostgreSQL locator index with a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Index {
	return &Index{db: pool}
}

// EnsureSchema creates the index tables when they do not exist yet.
func (i *Index) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS study_location (
			study_uid  TEXT PRIMARY KEY,
			dir        TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS series_location (
			series_uid TEXT PRIMARY KEY,
			dir        TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	if _, err := i.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create locator schema: %w", err)
	}
	return nil
}

func (i *Index) RecordStudy(ctx context.Context, studyUID, dir string) error {
	query := `
		INSERT INTO study_location (study_uid, dir, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (study_uid)
		DO UPDATE SET dir = EXCLUDED.dir, updated_at = now()`

	if _, err := i.db.Exec(ctx, query, studyUID, dir); err != nil {
		return fmt.Errorf("failed to record study location: %w", err)
	}
	return nil
}

func (i *Index) RecordSeries(ctx context.Context, seriesUID, dir string) error {
	query := `
		INSERT INTO series_location (series_uid, dir, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (series_uid)
		DO UPDATE SET dir = EXCLUDED.dir, updated_at = now()`

	if _, err := i.db.Exec(ctx, query, seriesUID, dir); err != nil {
		return fmt.Errorf("failed to record series location: %w", err)
	}
	return nil
}

func (i *Index) LookupStudy(ctx context.Context, studyUID string) (string, error) {
	query := `SELECT dir FROM study_location WHERE study_uid = $1`

	var dir string
	err := i.db.QueryRow(ctx, query, studyUID).Scan(&dir)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", simplepacs.ErrStudyNotFound
		}
		return "", fmt.Errorf("failed to look up study location: %w", err)
	}
	return dir, nil
}

func (i *Index) LookupSeries(ctx context.Context, seriesUID string) (string, error) {
	query := `SELECT dir FROM series_location WHERE series_uid = $1`

	var dir string
	err := i.db.QueryRow(ctx, query, seriesUID).Scan(&dir)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", simplepacs.ErrSeriesNotFound
		}
		return "", fmt.Errorf("failed to look up series location: %w", err)
	}
	return dir, nil
}
