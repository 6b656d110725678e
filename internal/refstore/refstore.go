// Package refstore defines the reference corpus store: canonical Quran verses
// and hadith traditions with precomputed embedding vectors, queryable by
// vector similarity and by canonical key.
//
// Implementations live in subpackages: [postgres] for the pgvector-backed
// production store and [mock] for tests.
package refstore

import (
	"context"
	"errors"
)

// Kind identifies which corpus an entry belongs to.
type Kind string

const (
	// KindQuran marks a Quran verse. Canonical keys are "surah:ayah",
	// e.g. "2:255".
	KindQuran Kind = "quran"

	// KindHadith marks a hadith tradition. Canonical keys are
	// "collection:book:number", e.g. "bukhari:1:1".
	KindHadith Kind = "hadith"
)

// Valid reports whether k is a known corpus kind.
func (k Kind) Valid() bool {
	return k == KindQuran || k == KindHadith
}

// ErrNotFound is returned by LookupExact when no entry has the given key.
var ErrNotFound = errors.New("refstore: entry not found")

// ErrUnavailable wraps connection and query failures. Callers that degrade
// gracefully (the matcher treats an unavailable corpus as "no matches")
// test for it with errors.Is.
var ErrUnavailable = errors.New("refstore: store unavailable")

// Entry is one canonical reference text.
//
// Arabic holds the canonical Arabic text with full diacritics; Normalized is
// the diacritic-stripped, letter-folded form that embeddings are computed
// over. Transliteration and English are optional display aids. Grade and
// Narrator are only meaningful for hadith entries.
type Entry struct {
	Kind            Kind
	Key             string
	Label           string
	Arabic          string
	Normalized      string
	English         string
	Transliteration string
	Grade           string
	Narrator        string

	// Embedding is the vector for Normalized. Populated at seed time; Nearest
	// results omit it to keep result sets small.
	Embedding []float32
}

// Result is one nearest-neighbour hit.
type Result struct {
	Entry Entry

	// Similarity is cosine similarity in [0, 1], higher is closer.
	Similarity float64
}

// Store is the abstraction over the reference corpus.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Nearest returns up to limit entries of the given kind whose cosine
	// similarity to embedding is strictly greater than threshold, ordered by
	// descending similarity. An empty result is not an error.
	Nearest(ctx context.Context, embedding []float32, kind Kind, threshold float64, limit int) ([]Result, error)

	// NearestMixed searches both corpora and returns the combined top results
	// ordered by descending similarity, truncated to limit.
	NearestMixed(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Result, error)

	// LookupExact returns the entry with the given canonical key, or
	// ErrNotFound.
	LookupExact(ctx context.Context, kind Kind, key string) (*Entry, error)

	// SeedVerses upserts a batch of Quran verse entries. Entries must carry
	// embeddings.
	SeedVerses(ctx context.Context, entries []Entry) error

	// SeedTraditions upserts a batch of hadith entries. Entries must carry
	// embeddings.
	SeedTraditions(ctx context.Context, entries []Entry) error

	// Count returns the number of stored entries of the given kind.
	Count(ctx context.Context, kind Kind) (int, error)
}
