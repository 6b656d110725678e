package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/daleel-app/daleel/internal/refstore"
	"github.com/daleel-app/daleel/internal/transcriptstore"
	"github.com/daleel-app/daleel/internal/transcriptstore/mock"
)

func createPending(t *testing.T, s *mock.Store) uuid.UUID {
	t.Helper()
	tr := &transcriptstore.Transcript{Title: "lecture", Text: "نص المحاضرة"}
	if err := s.Create(context.Background(), tr); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tr.ID
}

func TestStore_CreateAssignsIDAndPendingStatus(t *testing.T) {
	t.Parallel()

	s := mock.New()
	tr := &transcriptstore.Transcript{Title: "lecture", Text: "نص"}
	if err := s.Create(context.Background(), tr); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tr.ID == uuid.Nil {
		t.Error("Create left a nil ID")
	}
	if tr.Status != transcriptstore.StatusPending {
		t.Errorf("Status=%q, want pending", tr.Status)
	}

	got, err := s.Get(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != tr.Text || got.Status != transcriptstore.StatusPending {
		t.Errorf("stored transcript=%+v", got)
	}
}

func TestStore_GetUnknownID(t *testing.T) {
	t.Parallel()

	s := mock.New()
	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, transcriptstore.ErrNotFound) {
		t.Errorf("Get unknown id: err=%v, want ErrNotFound", err)
	}
}

func TestStore_BeginProcessingRejectsActiveRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mock.New()
	id := createPending(t, s)

	if err := s.BeginProcessing(ctx, id); err != nil {
		t.Fatalf("first BeginProcessing: %v", err)
	}
	if err := s.BeginProcessing(ctx, id); !errors.Is(err, transcriptstore.ErrConflict) {
		t.Errorf("BeginProcessing while processing: err=%v, want ErrConflict", err)
	}

	if err := s.CompleteProcessing(ctx, id, "annotated", transcriptstore.Stats{}); err != nil {
		t.Fatalf("CompleteProcessing: %v", err)
	}
	if err := s.BeginProcessing(ctx, id); !errors.Is(err, transcriptstore.ErrConflict) {
		t.Errorf("BeginProcessing after completion: err=%v, want ErrConflict", err)
	}
}

func TestStore_ErrorStateIsRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mock.New()
	id := createPending(t, s)

	if err := s.BeginProcessing(ctx, id); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := s.FailProcessing(ctx, id, "provider unavailable"); err != nil {
		t.Fatalf("FailProcessing: %v", err)
	}

	tr, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tr.Status != transcriptstore.StatusError || tr.ErrorMessage != "provider unavailable" {
		t.Errorf("after failure: status=%q message=%q", tr.Status, tr.ErrorMessage)
	}

	// A failed run may be retried; the retry clears the previous error.
	if err := s.BeginProcessing(ctx, id); err != nil {
		t.Fatalf("retry BeginProcessing: %v", err)
	}
	tr, _ = s.Get(ctx, id)
	if tr.Status != transcriptstore.StatusProcessing || tr.ErrorMessage != "" {
		t.Errorf("after retry: status=%q message=%q", tr.Status, tr.ErrorMessage)
	}
}

func TestStore_RetryClearsPreviousAnnotations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mock.New()
	id := createPending(t, s)

	if err := s.BeginProcessing(ctx, id); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	anns := []transcriptstore.Annotation{
		{Kind: refstore.KindQuran, Key: "2:255", Start: 10, End: 40, Confidence: 0.8},
	}
	if err := s.InsertAnnotations(ctx, id, anns); err != nil {
		t.Fatalf("InsertAnnotations: %v", err)
	}
	if err := s.FailProcessing(ctx, id, "boom"); err != nil {
		t.Fatalf("FailProcessing: %v", err)
	}

	if err := s.BeginProcessing(ctx, id); err != nil {
		t.Fatalf("retry BeginProcessing: %v", err)
	}
	got, err := s.ListAnnotations(ctx, id)
	if err != nil {
		t.Fatalf("ListAnnotations: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("retry kept %d stale annotations", len(got))
	}
}

func TestStore_ListAnnotationsOrderedByStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mock.New()
	id := createPending(t, s)

	anns := []transcriptstore.Annotation{
		{Kind: refstore.KindHadith, Key: "h:1", Start: 90, End: 120},
		{Kind: refstore.KindQuran, Key: "q:1", Start: 10, End: 40},
		{Kind: refstore.KindQuran, Key: "q:2", Start: 50, End: 80},
	}
	if err := s.InsertAnnotations(ctx, id, anns); err != nil {
		t.Fatalf("InsertAnnotations: %v", err)
	}

	got, err := s.ListAnnotations(ctx, id)
	if err != nil {
		t.Fatalf("ListAnnotations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d annotations, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Start > got[i].Start {
			t.Errorf("annotations out of order: %d before %d", got[i-1].Start, got[i].Start)
		}
	}
	for i, a := range got {
		if a.ID == uuid.Nil {
			t.Errorf("annotation %d has nil ID", i)
		}
		if a.TranscriptID != id {
			t.Errorf("annotation %d bound to %s, want %s", i, a.TranscriptID, id)
		}
	}
}

func TestStore_DeleteCascadesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mock.New()
	id := createPending(t, s)
	if err := s.InsertAnnotations(ctx, id, []transcriptstore.Annotation{{Key: "q:1"}}); err != nil {
		t.Fatalf("InsertAnnotations: %v", err)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, transcriptstore.ErrNotFound) {
		t.Errorf("Get after delete: err=%v, want ErrNotFound", err)
	}
	if anns, _ := s.ListAnnotations(ctx, id); len(anns) != 0 {
		t.Errorf("annotations survived delete: %d", len(anns))
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Errorf("second Delete: %v, want nil", err)
	}
}

func TestStore_RecordsStatusTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := mock.New()
	id := createPending(t, s)

	_ = s.BeginProcessing(ctx, id)
	_ = s.CompleteProcessing(ctx, id, "annotated", transcriptstore.Stats{})

	want := []string{
		id.String() + ":processing",
		id.String() + ":complete",
	}
	if len(s.StatusTransitions) != len(want) {
		t.Fatalf("transitions=%v, want %v", s.StatusTransitions, want)
	}
	for i := range want {
		if s.StatusTransitions[i] != want[i] {
			t.Errorf("transition[%d]=%q, want %q", i, s.StatusTransitions[i], want[i])
		}
	}
}
