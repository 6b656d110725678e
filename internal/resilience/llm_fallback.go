package resilience

import (
	"context"

	"github.com/daleel-app/daleel/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple generative backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback
// handles the detection or adjudication call.
//
// With no fallbacks registered it still earns its keep: the primary's breaker
// sheds calls during an outage instead of letting every chunk of a transcript
// run time out in sequence.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional generative backend. Fallbacks are tried
// in registration order after the primary.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy backend and returns its
// response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// ModelID returns the primary backend's model identifier. It does not
// participate in failover because it is static metadata used for logging.
func (f *LLMFallback) ModelID() string {
	return f.group.entries[0].value.ModelID()
}
