// Package llm defines the Provider interface for generative language model
// backends.
//
// The annotation pipeline makes two kinds of model calls: candidate reference
// extraction over transcript chunks, and adjudication among close corpus
// matches. Both are single-shot structured-output completions, so the
// interface deliberately exposes only a blocking Complete call: no
// streaming, no tool calling.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message represents a single message in a model conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the model backend.
// Counts are in the backend's native token unit.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. The pipeline uses
	// low values (0.1) so extraction and adjudication stay near-deterministic.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full (non-streamed) model reply.
type CompletionResponse struct {
	// Content is the text of the reply. The pipeline parses it as JSON; see
	// the detect and match packages for the expected schemas.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any generative model backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the backend-specific model identifier (e.g., "gpt-4o").
	// Used for logging and metrics attributes.
	ModelID() string
}
