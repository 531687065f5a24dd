package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	readings "hydro-cloud/internal/readings/domain"
)

const defaultArchiveTable = "reading_archive"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ArchiveRepository mirrors accepted readings into Postgres, one row per metric.
// It is write-only: the service never reads the archive back.
type ArchiveRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ArchiveRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ArchiveRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewArchiveRepository constructs an archive repository.
func NewArchiveRepository(db *sql.DB, opts ...RepositoryOption) (*ArchiveRepository, error) {
	if db == nil {
		return nil, errors.New("reading archive: nil db")
	}
	repo := &ArchiveRepository{db: db, table: defaultArchiveTable}
	for _, opt := range opts {
		opt(repo)
	}
	if !tableNamePattern.MatchString(repo.table) {
		return nil, fmt.Errorf("reading archive: invalid table name %q", repo.table)
	}
	return repo, nil
}

// Table returns the target table name.
func (r *ArchiveRepository) Table() string {
	return r.table
}

// EnsureSchema creates the archive table when missing.
func (r *ArchiveRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("reading archive: nil db")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	unit_id TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	metric TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	classification TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, r.table))
	if err != nil {
		return fmt.Errorf("reading archive: create table: %w", err)
	}
	return nil
}

// Archive writes one row per metric of the reading in a single transaction.
func (r *ArchiveRepository) Archive(ctx context.Context, reading readings.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading archive: nil db")
	}
	if reading.UnitID == "" {
		return readings.ErrEmptyUnitID
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reading archive: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (unit_id, ts, metric, value, classification)
VALUES ($1,$2,$3,$4,$5)`, r.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("reading archive: prepare: %w", err)
	}
	defer stmt.Close()

	for _, metric := range reading.MetricKeys() {
		if _, err := stmt.ExecContext(ctx,
			reading.UnitID,
			reading.Timestamp.UTC(),
			metric,
			reading.Values[metric],
			string(reading.Classification),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reading archive: insert %s: %w", metric, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reading archive: commit: %w", err)
	}
	return nil
}
