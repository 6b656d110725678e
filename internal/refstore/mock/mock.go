// Package mock provides an in-memory test double for refstore.Store.
//
// Canned results are filtered by the threshold and limit arguments the same
// way the real store filters them, so matcher tests can exercise threshold
// behaviour without a database.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/daleel-app/daleel/internal/refstore"
)

// NearestCall records a single invocation of Nearest or NearestMixed.
// Kind is empty for NearestMixed calls.
type NearestCall struct {
	Ctx       context.Context
	Embedding []float32
	Kind      refstore.Kind
	Threshold float64
	Limit     int
}

// Store is a mock implementation of refstore.Store.
type Store struct {
	mu sync.Mutex

	// Results holds the canned corpus per kind. Nearest filters by threshold,
	// sorts by descending similarity, and truncates to limit before returning.
	Results map[refstore.Kind][]refstore.Result

	// Entries backs LookupExact, keyed by kind then canonical key.
	Entries map[refstore.Kind]map[string]refstore.Entry

	// Err, if non-nil, is returned from every query method.
	Err error

	// NearestCalls records every Nearest and NearestMixed invocation in order.
	NearestCalls []NearestCall

	// SeededVerses and SeededTraditions accumulate everything passed to the
	// seed methods.
	SeededVerses     []refstore.Entry
	SeededTraditions []refstore.Entry
}

// Compile-time interface check.
var _ refstore.Store = (*Store)(nil)

// Nearest implements refstore.Store.
func (s *Store) Nearest(ctx context.Context, embedding []float32, kind refstore.Kind, threshold float64, limit int) ([]refstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NearestCalls = append(s.NearestCalls, NearestCall{Ctx: ctx, Embedding: embedding, Kind: kind, Threshold: threshold, Limit: limit})
	if s.Err != nil {
		return nil, s.Err
	}
	return filter(s.Results[kind], threshold, limit), nil
}

// NearestMixed implements refstore.Store.
func (s *Store) NearestMixed(ctx context.Context, embedding []float32, threshold float64, limit int) ([]refstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NearestCalls = append(s.NearestCalls, NearestCall{Ctx: ctx, Embedding: embedding, Threshold: threshold, Limit: limit})
	if s.Err != nil {
		return nil, s.Err
	}
	merged := append(filter(s.Results[refstore.KindQuran], threshold, limit),
		filter(s.Results[refstore.KindHadith], threshold, limit)...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// LookupExact implements refstore.Store.
func (s *Store) LookupExact(ctx context.Context, kind refstore.Kind, key string) (*refstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if byKey, ok := s.Entries[kind]; ok {
		if e, ok := byKey[key]; ok {
			return &e, nil
		}
	}
	return nil, refstore.ErrNotFound
}

// SeedVerses implements refstore.Store.
func (s *Store) SeedVerses(ctx context.Context, entries []refstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.SeededVerses = append(s.SeededVerses, entries...)
	return nil
}

// SeedTraditions implements refstore.Store.
func (s *Store) SeedTraditions(ctx context.Context, entries []refstore.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.SeededTraditions = append(s.SeededTraditions, entries...)
	return nil
}

// Count implements refstore.Store. It counts canned results plus seeded
// entries for the kind.
func (s *Store) Count(ctx context.Context, kind refstore.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	n := len(s.Results[kind])
	switch kind {
	case refstore.KindQuran:
		n += len(s.SeededVerses)
	case refstore.KindHadith:
		n += len(s.SeededTraditions)
	}
	return n, nil
}

// Reset clears all recorded calls and seeded entries. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NearestCalls = nil
	s.SeededVerses = nil
	s.SeededTraditions = nil
}

// filter applies the strict-threshold, descending-order, limit contract of
// the real store to a canned result set.
func filter(rs []refstore.Result, threshold float64, limit int) []refstore.Result {
	var out []refstore.Result
	for _, r := range rs {
		if r.Similarity > threshold {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
