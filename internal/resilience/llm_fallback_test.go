package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/daleel-app/daleel/internal/observe"
	"github.com/daleel-app/daleel/internal/resilience"
	"github.com/daleel-app/daleel/pkg/provider/llm"
	llmmock "github.com/daleel-app/daleel/pkg/provider/llm/mock"
)

func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	}
}

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "primary"},
		ModelIDValue:     "gpt-4o",
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "secondary"},
	}
	f := resilience.NewLLMFallback(primary, "openai", fallbackConfig())
	f.AddFallback("ollama", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" {
		t.Errorf("Content=%q, want primary response", resp.Content)
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Errorf("secondary was called %d times", len(secondary.CompleteCalls))
	}
	if f.ModelID() != "gpt-4o" {
		t.Errorf("ModelID()=%q, want the primary's", f.ModelID())
	}
}

func TestLLMFallback_FailsOverToSecondary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "secondary"},
	}
	f := resilience.NewLLMFallback(primary, "openai", fallbackConfig())
	f.AddFallback("ollama", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "secondary" {
		t.Errorf("Content=%q, want secondary response", resp.Content)
	}
}

func TestLLMFallback_AllBackendsFail(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	f := resilience.NewLLMFallback(primary, "openai", fallbackConfig())

	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err=%v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_RecordsProviderMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "secondary"},
	}
	cfg := fallbackConfig()
	cfg.Metrics = met
	f := resilience.NewLLMFallback(primary, "openai", cfg)
	f.AddFallback("ollama", secondary)

	if _, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	checks := []struct {
		metric string
		attrs  map[string]string
		want   int64
	}{
		{"daleel.provider.requests", map[string]string{"provider": "openai", "kind": "llm", "status": "error"}, 1},
		{"daleel.provider.requests", map[string]string{"provider": "ollama", "kind": "llm", "status": "ok"}, 1},
		{"daleel.provider.errors", map[string]string{"provider": "openai", "kind": "llm"}, 1},
	}
	for _, c := range checks {
		if got := counterValue(rm, c.metric, c.attrs); got != c.want {
			t.Errorf("%s%v = %d, want %d", c.metric, c.attrs, got, c.want)
		}
	}
}

// counterValue returns the value of the named counter's data point whose
// attributes include all of attrs, or 0 when none matches.
func counterValue(rm metricdata.ResourceMetrics, name string, attrs map[string]string) int64 {
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				matched := 0
				for _, kv := range dp.Attributes.ToSlice() {
					if want, ok := attrs[string(kv.Key)]; ok && kv.Value.AsString() == want {
						matched++
					}
				}
				if matched == len(attrs) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func TestLLMFallback_OpenBreakerShedsPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "secondary"},
	}
	f := resilience.NewLLMFallback(primary, "openai", fallbackConfig())
	f.AddFallback("ollama", secondary)

	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}}
	ctx := context.Background()

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		if _, err := f.Complete(ctx, req); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	calls := len(primary.CompleteCalls)

	// With the breaker open the primary is not called at all.
	if _, err := f.Complete(ctx, req); err != nil {
		t.Fatalf("Complete with open breaker: %v", err)
	}
	if len(primary.CompleteCalls) != calls {
		t.Errorf("primary called %d more times despite open breaker",
			len(primary.CompleteCalls)-calls)
	}
}
