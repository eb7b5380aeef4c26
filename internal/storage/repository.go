package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fee-tracker/internal/fees"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS fee_snapshots (
        id          BIGSERIAL PRIMARY KEY,
        captured_at TIMESTAMPTZ NOT NULL UNIQUE,
        base_fee    TEXT NOT NULL,
        fee_min     TEXT NOT NULL,
        fee_max     TEXT NOT NULL,
        fee_avg     TEXT NOT NULL,
        fee_p10     TEXT NOT NULL,
        fee_p25     TEXT NOT NULL,
        fee_p50     TEXT NOT NULL,
        fee_p75     TEXT NOT NULL,
        fee_p90     TEXT NOT NULL,
        fee_p95     TEXT NOT NULL,
        archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertSnapshotSQL = `INSERT INTO fee_snapshots (
        captured_at,
        base_fee,
        fee_min,
        fee_max,
        fee_avg,
        fee_p10,
        fee_p25,
        fee_p50,
        fee_p75,
        fee_p90,
        fee_p95
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (captured_at) DO NOTHING;`

	selectSnapshotColumns = `SELECT
        id,
        captured_at,
        base_fee,
        fee_min,
        fee_max,
        fee_avg,
        fee_p10,
        fee_p25,
        fee_p50,
        fee_p75,
        fee_p90,
        fee_p95,
        archived_at
    FROM fee_snapshots`

	listSnapshotsBetweenSQL = selectSnapshotColumns + `
    WHERE captured_at >= $1
      AND captured_at < $2
    ORDER BY captured_at;`

	listRecentSnapshotsSQL = selectSnapshotColumns + `
    ORDER BY captured_at DESC
    LIMIT $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM fee_snapshots;`
)

// SnapshotArchive persists snapshots for offline inspection. It is never
// used to restore the in-memory history.
type SnapshotArchive interface {
	InsertSnapshot(ctx context.Context, snap fees.Snapshot) error
}

// SnapshotReader lists archived snapshots.
type SnapshotReader interface {
	ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]SnapshotRecord, error)
	ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// Store gives access to the archived snapshots.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the archive table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// InsertSnapshot archives a snapshot. Re-inserting the same captured_at is a no-op.
func (s *Store) InsertSnapshot(ctx context.Context, snap fees.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	c := snap.Charged
	_, execErr := pool.Exec(ctx, insertSnapshotSQL,
		snap.CapturedAt,
		snap.BaseFee,
		c.Min,
		c.Max,
		c.Avg,
		c.P10,
		c.P25,
		c.P50,
		c.P75,
		c.P90,
		c.P95,
	)
	if execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	return nil
}

// ListSnapshotsBetween lists snapshots captured within [from, to).
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	return collectSnapshots(rows, 0)
}

// ListRecentSnapshots lists the newest snapshots, newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	return collectSnapshots(rows, limit)
}

// CountSnapshots counts archived snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

func collectSnapshots(rows pgx.Rows, sizeHint int) ([]SnapshotRecord, error) {
	defer rows.Close()

	records := make([]SnapshotRecord, 0, sizeHint)
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanSnapshot(rows pgx.Rows) (SnapshotRecord, error) {
	var rec SnapshotRecord
	c := &rec.Snapshot.Charged
	if err := rows.Scan(
		&rec.ID,
		&rec.Snapshot.CapturedAt,
		&rec.Snapshot.BaseFee,
		&c.Min,
		&c.Max,
		&c.Avg,
		&c.P10,
		&c.P25,
		&c.P50,
		&c.P75,
		&c.P90,
		&c.P95,
		&rec.ArchivedAt,
	); err != nil {
		return SnapshotRecord{}, fmt.Errorf("scan snapshot: %w", err)
	}
	return rec, nil
}

var (
	_ SnapshotArchive = (*Store)(nil)
	_ SnapshotReader  = (*Store)(nil)
)
