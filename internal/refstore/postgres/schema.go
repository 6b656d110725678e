package postgres

import "fmt"

// schema returns the DDL for the reference corpus tables. Both tables share
// the same column set so the query layer can treat them uniformly; grade and
// narrator stay empty on verses.
//
// dims is the embedding dimensionality of the vector columns and must match
// the embeddings provider used at seed time.
func schema(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS verses (
    key             TEXT PRIMARY KEY,
    label           TEXT NOT NULL DEFAULT '',
    arabic          TEXT NOT NULL,
    normalized      TEXT NOT NULL,
    english         TEXT NOT NULL DEFAULT '',
    transliteration TEXT NOT NULL DEFAULT '',
    grade           TEXT NOT NULL DEFAULT '',
    narrator        TEXT NOT NULL DEFAULT '',
    embedding       vector(%d) NOT NULL
);

CREATE TABLE IF NOT EXISTS traditions (
    key             TEXT PRIMARY KEY,
    label           TEXT NOT NULL DEFAULT '',
    arabic          TEXT NOT NULL,
    normalized      TEXT NOT NULL,
    english         TEXT NOT NULL DEFAULT '',
    transliteration TEXT NOT NULL DEFAULT '',
    grade           TEXT NOT NULL DEFAULT '',
    narrator        TEXT NOT NULL DEFAULT '',
    embedding       vector(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verses_embedding
    ON verses USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_traditions_embedding
    ON traditions USING hnsw (embedding vector_cosine_ops);
`, dims, dims)
}
