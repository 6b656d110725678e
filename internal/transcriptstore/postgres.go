package transcriptstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/daleel-app/daleel/internal/refstore"
)

// Schema is the SQL DDL for the transcripts and annotations tables. Execute
// it via [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id             UUID PRIMARY KEY,
    title          TEXT NOT NULL DEFAULT '',
    text           TEXT NOT NULL,
    annotated_text TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'pending',
    error_message  TEXT NOT NULL DEFAULT '',
    stats          JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS annotations (
    id            UUID PRIMARY KEY,
    transcript_id UUID NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
    kind          TEXT NOT NULL,
    key           TEXT NOT NULL,
    label         TEXT NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    start_offset  INTEGER NOT NULL,
    end_offset    INTEGER NOT NULL,
    adjudicated   BOOLEAN NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_annotations_transcript ON annotations(transcript_id);
CREATE INDEX IF NOT EXISTS idx_transcripts_status ON transcripts(status);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] over the given connection or
// pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the tables and indexes if they
// do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("transcriptstore: migrate: %w", err)
	}
	return nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, t *Transcript) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}

	statsJSON, err := json.Marshal(t.Stats)
	if err != nil {
		return fmt.Errorf("transcriptstore: marshal stats: %w", err)
	}

	const query = `
		INSERT INTO transcripts (id, title, text, annotated_text, status, error_message, stats)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		t.ID, t.Title, t.Text, t.AnnotatedText, string(t.Status), t.ErrorMessage, statsJSON,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transcriptstore: create: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Transcript, error) {
	const query = `
		SELECT id, title, text, annotated_text, status, error_message, stats, created_at, updated_at
		FROM transcripts
		WHERE id = $1`

	var t Transcript
	var status string
	var statsJSON []byte

	err := s.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Title, &t.Text, &t.AnnotatedText, &status, &t.ErrorMessage,
		&statsJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transcriptstore: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("transcriptstore: get %s: %w", id, err)
	}
	t.Status = Status(status)

	if err := json.Unmarshal(statsJSON, &t.Stats); err != nil {
		return nil, fmt.Errorf("transcriptstore: unmarshal stats: %w", err)
	}
	return &t, nil
}

// BeginProcessing implements [Store]. The guard and the transition happen in
// one statement so two concurrent triggers cannot both pass the status check.
func (s *PostgresStore) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE transcripts
		SET    status = $2, error_message = '', updated_at = now()
		WHERE  id = $1 AND status NOT IN ($3, $4)`

	tag, err := s.db.Exec(ctx, query, id,
		string(StatusProcessing), string(StatusProcessing), string(StatusComplete))
	if err != nil {
		return fmt.Errorf("transcriptstore: begin processing %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing transcript from a status conflict.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("transcriptstore: begin processing %s: %w", id, ErrConflict)
	}

	// Clear leftovers from a previous failed run.
	if _, err := s.db.Exec(ctx, `DELETE FROM annotations WHERE transcript_id = $1`, id); err != nil {
		return fmt.Errorf("transcriptstore: begin processing %s: clear annotations: %w", id, err)
	}
	return nil
}

// CompleteProcessing implements [Store].
func (s *PostgresStore) CompleteProcessing(ctx context.Context, id uuid.UUID, annotatedText string, stats Stats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("transcriptstore: marshal stats: %w", err)
	}

	const query = `
		UPDATE transcripts
		SET    status = $2, annotated_text = $3, stats = $4, error_message = '', updated_at = now()
		WHERE  id = $1`

	tag, err := s.db.Exec(ctx, query, id, string(StatusComplete), annotatedText, statsJSON)
	if err != nil {
		return fmt.Errorf("transcriptstore: complete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transcriptstore: complete %s: %w", id, ErrNotFound)
	}
	return nil
}

// FailProcessing implements [Store].
func (s *PostgresStore) FailProcessing(ctx context.Context, id uuid.UUID, cause string) error {
	const query = `
		UPDATE transcripts
		SET    status = $2, error_message = $3, updated_at = now()
		WHERE  id = $1`

	tag, err := s.db.Exec(ctx, query, id, string(StatusError), cause)
	if err != nil {
		return fmt.Errorf("transcriptstore: fail %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transcriptstore: fail %s: %w", id, ErrNotFound)
	}
	return nil
}

// InsertAnnotations implements [Store].
func (s *PostgresStore) InsertAnnotations(ctx context.Context, transcriptID uuid.UUID, anns []Annotation) error {
	const query = `
		INSERT INTO annotations (id, transcript_id, kind, key, label, confidence, start_offset, end_offset, adjudicated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	for i := range anns {
		if anns[i].ID == uuid.Nil {
			anns[i].ID = uuid.New()
		}
		anns[i].TranscriptID = transcriptID
		_, err := s.db.Exec(ctx, query,
			anns[i].ID, transcriptID, string(anns[i].Kind), anns[i].Key, anns[i].Label,
			anns[i].Confidence, anns[i].Start, anns[i].End, anns[i].Adjudicated,
		)
		if err != nil {
			return fmt.Errorf("transcriptstore: insert annotation %d: %w", i, err)
		}
	}
	return nil
}

// ListAnnotations implements [Store].
func (s *PostgresStore) ListAnnotations(ctx context.Context, transcriptID uuid.UUID) ([]Annotation, error) {
	const query = `
		SELECT id, transcript_id, kind, key, label, confidence, start_offset, end_offset, adjudicated, created_at
		FROM annotations
		WHERE transcript_id = $1
		ORDER BY start_offset`

	rows, err := s.db.Query(ctx, query, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("transcriptstore: list annotations: %w", err)
	}
	defer rows.Close()

	var anns []Annotation
	for rows.Next() {
		var a Annotation
		var kind string
		if err := rows.Scan(
			&a.ID, &a.TranscriptID, &kind, &a.Key, &a.Label,
			&a.Confidence, &a.Start, &a.End, &a.Adjudicated, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("transcriptstore: list annotations scan: %w", err)
		}
		a.Kind = refstore.Kind(kind)
		anns = append(anns, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcriptstore: list annotations: %w", err)
	}
	return anns, nil
}

// Delete implements [Store]. Annotations go with the transcript via the
// ON DELETE CASCADE constraint.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM transcripts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("transcriptstore: delete %s: %w", id, err)
	}
	return nil
}
