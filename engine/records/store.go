// Package records is the relational store for ingested records. It owns
// the schema, batched append-only inserts, and the read paths used by the
// indexer and the stats/filters endpoints.
package records

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlasdx/marketai/engine/domain"
)

// DB is the subset of pgxpool.Pool the store needs. Defined here so tests
// can substitute a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store provides access to the records table.
type Store struct {
	db DB
}

// Open connects a pgx pool to the database and returns a Store over it.
func Open(ctx context.Context, databaseURL string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("records: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("records: ping: %w", err)
	}
	return New(pool), pool, nil
}

// New creates a Store over an existing connection.
func New(db DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the records table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS records (
	id       BIGSERIAL PRIMARY KEY,
	source   TEXT NOT NULL,
	content  TEXT NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS records_source_idx ON records (source);`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("records: ensure schema: %w", err)
	}
	return nil
}

// CreateBatch inserts records in a single transaction. IDs are assigned
// by the database and written back into the slice.
func (s *Store) CreateBatch(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("records: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO records (source, content, metadata) VALUES ($1, $2, $3::jsonb) RETURNING id`
	for i := range recs {
		meta, err := json.Marshal(recs[i].Metadata)
		if err != nil {
			return fmt.Errorf("records: marshal metadata: %w", err)
		}
		if err := tx.QueryRow(ctx, q, recs[i].Source, recs[i].Content, string(meta)).Scan(&recs[i].ID); err != nil {
			return fmt.Errorf("records: insert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("records: commit: %w", err)
	}
	return nil
}

// ListOpts controls record selection for List.
type ListOpts struct {
	Source string // empty selects all sources
	Limit  int    // zero means no cap
	Offset int
}

// List returns records ordered by id, honoring the source filter, limit,
// and offset.
func (s *Store) List(ctx context.Context, opts ListOpts) ([]domain.Record, error) {
	q := `SELECT id, source, content, metadata FROM records`
	args := []any{}
	if opts.Source != "" {
		q += ` WHERE source = $1`
		args = append(args, opts.Source)
	}
	q += ` ORDER BY id`
	if opts.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		q += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]domain.Record, error) {
	var out []domain.Record
	for rows.Next() {
		var (
			rec  domain.Record
			meta []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Content, &meta); err != nil {
			return nil, fmt.Errorf("records: scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("records: unmarshal metadata for id %d: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: rows: %w", err)
	}
	return out, nil
}

// ListByIDRange returns records with first <= id <= last, ordered by id.
// Used by the indexer's watch mode to pick up a freshly committed batch.
func (s *Store) ListByIDRange(ctx context.Context, first, last int64) ([]domain.Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source, content, metadata FROM records WHERE id BETWEEN $1 AND $2 ORDER BY id`,
		first, last)
	if err != nil {
		return nil, fmt.Errorf("records: list range: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Count returns the total number of records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	return n, nil
}

// CountBySource returns record counts grouped by source tag.
func (s *Store) CountBySource(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT source, count(*) FROM records GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("records: count by source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			src string
			n   int64
		)
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("records: scan count: %w", err)
		}
		out[src] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: count rows: %w", err)
	}
	return out, nil
}

// DistinctMetaValues returns up to limit distinct non-null values of one
// metadata field, sorted. Drives the /filters endpoint.
func (s *Store) DistinctMetaValues(ctx context.Context, field string, limit int) ([]string, error) {
	const q = `
SELECT DISTINCT metadata->>$1 FROM records
WHERE metadata->>$1 IS NOT NULL
ORDER BY 1 LIMIT $2`
	rows, err := s.db.Query(ctx, q, field, limit)
	if err != nil {
		return nil, fmt.Errorf("records: distinct %s: %w", field, err)
	}
	defer rows.Close()

	var vals []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("records: scan distinct: %w", err)
		}
		vals = append(vals, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: distinct rows: %w", err)
	}
	return vals, nil
}
