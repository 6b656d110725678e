// Package postgres implements refstore.Store on PostgreSQL with the pgvector
// extension.
//
// Verses and traditions live in separate tables, each with a vector column
// and an HNSW cosine index. Similarity is computed as 1 - (embedding <=> $1).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/daleel-app/daleel/internal/refstore"
)

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a refstore.Store backed by PostgreSQL + pgvector.
type Store struct {
	db   DB
	dims int
}

// Compile-time interface check.
var _ refstore.Store = (*Store)(nil)

// New creates a Store over an existing connection or pool. dims is the
// embedding dimensionality used by [Store.Migrate] when creating the vector
// columns; it must match the embeddings provider seeding the corpus.
func New(db DB, dims int) *Store {
	return &Store{db: db, dims: dims}
}

// Connect opens a pgx pool against dsn with pgvector types registered on
// every connection, and returns a Store over it. The caller owns the pool.
func Connect(ctx context.Context, dsn string, dims int) (*Store, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("refstore: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("refstore: connect: %w", err)
	}
	return New(pool, dims), pool, nil
}

// Migrate creates the extension, tables, and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema(s.dims)); err != nil {
		return fmt.Errorf("refstore: migrate: %w: %w", refstore.ErrUnavailable, err)
	}
	return nil
}

// tableFor maps a corpus kind to its table name.
func tableFor(kind refstore.Kind) (string, error) {
	switch kind {
	case refstore.KindQuran:
		return "verses", nil
	case refstore.KindHadith:
		return "traditions", nil
	default:
		return "", fmt.Errorf("refstore: unknown kind %q", kind)
	}
}

// Nearest implements refstore.Store.
func (s *Store) Nearest(ctx context.Context, embedding []float32, kind refstore.Kind, threshold float64, limit int) ([]refstore.Result, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}

	q := fmt.Sprintf(`
		SELECT key, label, arabic, normalized, english, transliteration, grade, narrator,
		       1 - (embedding <=> $1) AS similarity
		FROM   %s
		WHERE  1 - (embedding <=> $1) > $2
		ORDER  BY similarity DESC
		LIMIT  $3`, table)

	rows, err := s.db.Query(ctx, q, pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("refstore: nearest %s: %w: %w", kind, refstore.ErrUnavailable, err)
	}
	defer rows.Close()

	results, err := collectResults(rows, kind)
	if err != nil {
		return nil, fmt.Errorf("refstore: nearest %s: %w: %w", kind, refstore.ErrUnavailable, err)
	}
	return results, nil
}

// NearestMixed implements refstore.Store. Each corpus is queried with the
// full limit so a strong corpus cannot starve the other before the merge;
// the merged set is re-sorted by similarity and truncated.
func (s *Store) NearestMixed(ctx context.Context, embedding []float32, threshold float64, limit int) ([]refstore.Result, error) {
	verses, err := s.Nearest(ctx, embedding, refstore.KindQuran, threshold, limit)
	if err != nil {
		return nil, err
	}
	traditions, err := s.Nearest(ctx, embedding, refstore.KindHadith, threshold, limit)
	if err != nil {
		return nil, err
	}

	merged := append(verses, traditions...)
	sortResults(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// LookupExact implements refstore.Store.
func (s *Store) LookupExact(ctx context.Context, kind refstore.Kind, key string) (*refstore.Entry, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT key, label, arabic, normalized, english, transliteration, grade, narrator
		FROM   %s
		WHERE  key = $1`, table)

	e := refstore.Entry{Kind: kind}
	err = s.db.QueryRow(ctx, q, key).Scan(
		&e.Key, &e.Label, &e.Arabic, &e.Normalized,
		&e.English, &e.Transliteration, &e.Grade, &e.Narrator,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("refstore: lookup %s %q: %w", kind, key, refstore.ErrNotFound)
		}
		return nil, fmt.Errorf("refstore: lookup %s %q: %w: %w", kind, key, refstore.ErrUnavailable, err)
	}
	return &e, nil
}

// SeedVerses implements refstore.Store.
func (s *Store) SeedVerses(ctx context.Context, entries []refstore.Entry) error {
	return s.seed(ctx, refstore.KindQuran, entries)
}

// SeedTraditions implements refstore.Store.
func (s *Store) SeedTraditions(ctx context.Context, entries []refstore.Entry) error {
	return s.seed(ctx, refstore.KindHadith, entries)
}

// seed upserts entries into the table for kind. Entries of a different kind
// or without embeddings are rejected before any row is written.
func (s *Store) seed(ctx context.Context, kind refstore.Kind, entries []refstore.Entry) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.Kind != kind {
			return fmt.Errorf("refstore: seed %s: entry %d has kind %q", kind, i, e.Kind)
		}
		if e.Key == "" {
			return fmt.Errorf("refstore: seed %s: entry %d has empty key", kind, i)
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("refstore: seed %s: entry %q has no embedding", kind, e.Key)
		}
	}

	q := fmt.Sprintf(`
		INSERT INTO %s (key, label, arabic, normalized, english, transliteration, grade, narrator, embedding)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (key) DO UPDATE SET
			label = EXCLUDED.label,
			arabic = EXCLUDED.arabic,
			normalized = EXCLUDED.normalized,
			english = EXCLUDED.english,
			transliteration = EXCLUDED.transliteration,
			grade = EXCLUDED.grade,
			narrator = EXCLUDED.narrator,
			embedding = EXCLUDED.embedding`, table)

	for _, e := range entries {
		_, err := s.db.Exec(ctx, q,
			e.Key, e.Label, e.Arabic, e.Normalized,
			e.English, e.Transliteration, e.Grade, e.Narrator,
			pgvector.NewVector(e.Embedding),
		)
		if err != nil {
			return fmt.Errorf("refstore: seed %s %q: %w: %w", kind, e.Key, refstore.ErrUnavailable, err)
		}
	}
	return nil
}

// Count implements refstore.Store.
func (s *Store) Count(ctx context.Context, kind refstore.Kind) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("refstore: count %s: %w: %w", kind, refstore.ErrUnavailable, err)
	}
	return n, nil
}

// collectResults scans similarity rows into refstore.Result values.
func collectResults(rows pgx.Rows, kind refstore.Kind) ([]refstore.Result, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (refstore.Result, error) {
		r := refstore.Result{Entry: refstore.Entry{Kind: kind}}
		err := row.Scan(
			&r.Entry.Key, &r.Entry.Label, &r.Entry.Arabic, &r.Entry.Normalized,
			&r.Entry.English, &r.Entry.Transliteration, &r.Entry.Grade, &r.Entry.Narrator,
			&r.Similarity,
		)
		return r, err
	})
}

// sortResults orders results by descending similarity, key ascending on ties
// so mixed-corpus merges stay deterministic.
func sortResults(rs []refstore.Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Similarity != rs[j].Similarity {
			return rs[i].Similarity > rs[j].Similarity
		}
		return rs[i].Entry.Key < rs[j].Entry.Key
	})
}
