package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/daleel-app/daleel/internal/resilience"
	embmock "github.com/daleel-app/daleel/pkg/provider/embeddings/mock"
)

func TestEmbeddingsFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &embmock.Provider{EmbedResult: []float32{1, 2, 3}, DimensionsValue: 3}
	f := resilience.NewEmbeddingsFallback(primary, "openai", fallbackConfig())

	vec, err := f.Embed(context.Background(), "نص")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length=%d, want 3", len(vec))
	}
	if f.Dimensions() != 3 {
		t.Errorf("Dimensions()=%d, want 3", f.Dimensions())
	}
}

func TestEmbeddingsFallback_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &embmock.Provider{EmbedErr: errors.New("down"), EmbedBatchErr: errors.New("down")}
	secondary := &embmock.Provider{
		EmbedResult:      []float32{9},
		EmbedBatchResult: [][]float32{{9}, {8}},
	}
	f := resilience.NewEmbeddingsFallback(primary, "openai", fallbackConfig())
	f.AddFallback("ollama", secondary)

	vec, err := f.Embed(context.Background(), "نص")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 1 || vec[0] != 9 {
		t.Errorf("vec=%v, want the secondary's", vec)
	}

	vecs, err := f.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("got %d vectors, want 2", len(vecs))
	}
}
