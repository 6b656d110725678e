// Package mock provides an in-memory test double for transcriptstore.Store.
//
// It enforces the same status state machine as the real store, so pipeline
// tests exercise conflict rejection and terminal transitions without a
// database.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daleel-app/daleel/internal/transcriptstore"
)

// Store is a mock implementation of transcriptstore.Store.
type Store struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from every method. Takes precedence over
	// the per-method error fields.
	Err error

	// BeginErr, CompleteErr, FailErr, and InsertErr inject failures into the
	// corresponding methods.
	BeginErr    error
	CompleteErr error
	FailErr     error
	InsertErr   error

	transcripts map[uuid.UUID]*transcriptstore.Transcript
	annotations map[uuid.UUID][]transcriptstore.Annotation

	// StatusTransitions records every status change as "id:status" strings,
	// in order.
	StatusTransitions []string
}

// Compile-time interface check.
var _ transcriptstore.Store = (*Store)(nil)

// New returns an empty mock store.
func New() *Store {
	return &Store{
		transcripts: make(map[uuid.UUID]*transcriptstore.Transcript),
		annotations: make(map[uuid.UUID][]transcriptstore.Annotation),
	}
}

// Create implements transcriptstore.Store.
func (s *Store) Create(ctx context.Context, t *transcriptstore.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = transcriptstore.StatusPending
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	s.transcripts[t.ID] = &cp
	return nil
}

// Get implements transcriptstore.Store.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*transcriptstore.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	t, ok := s.transcripts[id]
	if !ok {
		return nil, transcriptstore.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// BeginProcessing implements transcriptstore.Store.
func (s *Store) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.BeginErr != nil {
		return s.BeginErr
	}
	t, ok := s.transcripts[id]
	if !ok {
		return transcriptstore.ErrNotFound
	}
	if t.Status == transcriptstore.StatusProcessing || t.Status == transcriptstore.StatusComplete {
		return transcriptstore.ErrConflict
	}
	t.Status = transcriptstore.StatusProcessing
	t.ErrorMessage = ""
	t.UpdatedAt = time.Now()
	delete(s.annotations, id)
	s.record(id, t.Status)
	return nil
}

// CompleteProcessing implements transcriptstore.Store.
func (s *Store) CompleteProcessing(ctx context.Context, id uuid.UUID, annotatedText string, stats transcriptstore.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.CompleteErr != nil {
		return s.CompleteErr
	}
	t, ok := s.transcripts[id]
	if !ok {
		return transcriptstore.ErrNotFound
	}
	t.Status = transcriptstore.StatusComplete
	t.AnnotatedText = annotatedText
	t.Stats = stats
	t.ErrorMessage = ""
	t.UpdatedAt = time.Now()
	s.record(id, t.Status)
	return nil
}

// FailProcessing implements transcriptstore.Store.
func (s *Store) FailProcessing(ctx context.Context, id uuid.UUID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.FailErr != nil {
		return s.FailErr
	}
	t, ok := s.transcripts[id]
	if !ok {
		return transcriptstore.ErrNotFound
	}
	t.Status = transcriptstore.StatusError
	t.ErrorMessage = cause
	t.UpdatedAt = time.Now()
	s.record(id, t.Status)
	return nil
}

// InsertAnnotations implements transcriptstore.Store.
func (s *Store) InsertAnnotations(ctx context.Context, transcriptID uuid.UUID, anns []transcriptstore.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.InsertErr != nil {
		return s.InsertErr
	}
	now := time.Now()
	for i := range anns {
		if anns[i].ID == uuid.Nil {
			anns[i].ID = uuid.New()
		}
		anns[i].TranscriptID = transcriptID
		anns[i].CreatedAt = now
	}
	s.annotations[transcriptID] = append(s.annotations[transcriptID], anns...)
	return nil
}

// ListAnnotations implements transcriptstore.Store.
func (s *Store) ListAnnotations(ctx context.Context, transcriptID uuid.UUID) ([]transcriptstore.Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	anns := append([]transcriptstore.Annotation(nil), s.annotations[transcriptID]...)
	sort.Slice(anns, func(i, j int) bool { return anns[i].Start < anns[j].Start })
	return anns, nil
}

// Delete implements transcriptstore.Store.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	delete(s.transcripts, id)
	delete(s.annotations, id)
	return nil
}

// record appends a status transition to the log.
func (s *Store) record(id uuid.UUID, status transcriptstore.Status) {
	s.StatusTransitions = append(s.StatusTransitions, fmt.Sprintf("%s:%s", id, status))
}
