// Package transcriptstore persists lecture transcripts, their processing
// status, and the annotation records produced by the pipeline.
//
// The status state machine is pending → processing → {complete | error}.
// Entering processing is guarded at the store level: BeginProcessing rejects
// a transcript that is already processing or complete with [ErrConflict], so
// concurrent triggers cannot start overlapping runs.
package transcriptstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/daleel-app/daleel/internal/refstore"
)

// Status is the processing state of a transcript.
type Status string

const (
	// StatusPending means the transcript is stored but not yet processed.
	StatusPending Status = "pending"

	// StatusProcessing means a pipeline run is in progress.
	StatusProcessing Status = "processing"

	// StatusComplete means the last run finished and AnnotatedText is set.
	StatusComplete Status = "complete"

	// StatusError means the last run failed; ErrorMessage holds the cause.
	StatusError Status = "error"
)

// ErrNotFound is returned when no transcript has the given ID.
var ErrNotFound = errors.New("transcriptstore: transcript not found")

// ErrConflict is returned by BeginProcessing when the transcript is already
// processing or complete.
var ErrConflict = errors.New("transcriptstore: transcript not in a startable state")

// Stats mirrors the annotation statistics persisted with a completed run.
type Stats struct {
	TotalDetected        int `json:"total_detected"`
	TotalMatches         int `json:"total_matches"`
	QuranPlaced          int `json:"quran_placed"`
	HadithPlaced         int `json:"hadith_placed"`
	LowConfidenceSkipped int `json:"low_confidence_skipped"`
	Unplaced             int `json:"unplaced"`
}

// Transcript is one stored lecture transcript.
type Transcript struct {
	ID    uuid.UUID
	Title string

	// Text is the original transcript; never mutated by processing.
	Text string

	// AnnotatedText is the marker-bearing rewrite. Empty until a run
	// completes.
	AnnotatedText string

	Status Status

	// ErrorMessage holds the failure cause when Status is StatusError.
	ErrorMessage string

	// Stats summarises the last completed run.
	Stats Stats

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Annotation is one persisted reference annotation.
type Annotation struct {
	ID           uuid.UUID
	TranscriptID uuid.UUID
	Kind         refstore.Kind
	Key          string
	Label        string
	Confidence   float64

	// Start and End are rune offsets of the marker in AnnotatedText.
	Start int
	End   int

	Adjudicated bool
	CreatedAt   time.Time
}

// Store is the persistence abstraction used by the pipeline orchestrator.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new transcript in StatusPending. A zero ID is replaced
	// with a fresh one; the stored record is reflected back into t.
	Create(ctx context.Context, t *Transcript) error

	// Get returns the transcript with the given ID, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Transcript, error)

	// BeginProcessing transitions the transcript to StatusProcessing. It
	// returns ErrConflict when the current status is processing or complete,
	// and ErrNotFound for an unknown ID. Annotations from any previous failed
	// run are removed so a retry starts clean.
	BeginProcessing(ctx context.Context, id uuid.UUID) error

	// CompleteProcessing stores the annotated text and stats and transitions
	// to StatusComplete.
	CompleteProcessing(ctx context.Context, id uuid.UUID, annotatedText string, stats Stats) error

	// FailProcessing records the failure cause and transitions to
	// StatusError.
	FailProcessing(ctx context.Context, id uuid.UUID, cause string) error

	// InsertAnnotations bulk-inserts the annotations for one completed run.
	// Zero annotation IDs are replaced with fresh ones.
	InsertAnnotations(ctx context.Context, transcriptID uuid.UUID, anns []Annotation) error

	// ListAnnotations returns a transcript's annotations ordered by Start.
	ListAnnotations(ctx context.Context, transcriptID uuid.UUID) ([]Annotation, error)

	// Delete removes a transcript and, via cascade, its annotations.
	// Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}
