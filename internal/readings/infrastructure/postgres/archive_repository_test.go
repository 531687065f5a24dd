package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	readings "hydro-cloud/internal/readings/domain"
)

func TestNewArchiveRepositoryValidates(t *testing.T) {
	if _, err := NewArchiveRepository(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
	db, err := sql.Open("pgx", "postgres://localhost:1/none")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := NewArchiveRepository(db, WithTable("bad; DROP TABLE x")); err == nil {
		t.Fatalf("expected error for invalid table name")
	}
	repo, err := NewArchiveRepository(db, WithTable("archive.readings"))
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	if repo.Table() != "archive.readings" {
		t.Fatalf("unexpected table %s", repo.Table())
	}
}

func TestArchiveRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	table := fmt.Sprintf("reading_archive_test_%d", time.Now().UnixNano())
	repo, err := NewArchiveRepository(db, WithTable(table))
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	defer func() { _, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table) }()

	reading, err := readings.NewReading("u1", time.Date(2025, 5, 24, 12, 34, 56, 0, time.UTC), map[string]float64{
		readings.MetricPH: 8.1, readings.MetricTemp: 22.1, readings.MetricEC: 1.2,
	})
	if err != nil {
		t.Fatalf("new reading: %v", err)
	}
	if err := repo.Archive(ctx, reading); err != nil {
		t.Fatalf("archive: %v", err)
	}

	var rows int
	var classification string
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*), MAX(classification) FROM "+table+" WHERE unit_id = $1", "u1").Scan(&rows, &classification); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 3 {
		t.Fatalf("expected 3 metric rows, got %d", rows)
	}
	if classification != "Needs Attention" {
		t.Fatalf("unexpected classification %s", classification)
	}
}
