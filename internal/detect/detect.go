// Package detect implements the language-model reference detection stage.
//
// The [Detector] sends one transcript chunk to an [llm.Provider] with a fixed
// extraction prompt and parses the structured JSON reply into [Candidate]
// values. Candidates carry the literal (possibly garbled) transcript span,
// the model's reconstruction of the intended canonical wording, and advisory
// character offsets.
//
// Offsets returned by the model are treated as untrusted hints: models
// routinely miscount characters, especially across Arabic diacritics. The
// annotator re-locates every candidate by literal text search and uses the
// advisory offsets only for ordering.
//
// When the model reply cannot be parsed, Detect returns an empty candidate
// list and no error: one bad chunk must not fail the whole transcript.
package detect

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/daleel-app/daleel/internal/refstore"
	"github.com/daleel-app/daleel/pkg/provider/llm"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 2048
)

// systemPrompt instructs the model to extract candidate scripture quotations
// from an Arabic lecture transcript chunk.
const systemPrompt = `You are an expert in Quranic Arabic and hadith literature, analyzing transcripts of Islamic lectures.

Your task: find every place in the provided transcript chunk where the speaker quotes or closely paraphrases a Quran verse or a hadith.

Rules:
- Report the EXACT text as it appears in the transcript (including any transcription errors) as literal_text.
- Report your best reconstruction of the intended canonical wording as corrected_text.
- kind is "quran" for Quran verses and "hadith" for hadith.
- start and end are approximate character offsets of literal_text within the chunk. Best effort only.
- context is a short snippet of the surrounding transcript (a few words on each side).
- Only report spans you are reasonably confident are quotations or close paraphrases. Ordinary religious phrases (basmala, common du'a formulas) used conversationally are NOT quotations.
- Do not invent references. An empty list is a valid answer.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "references": [
    {"kind": "quran", "literal_text": "...", "corrected_text": "...", "start": 0, "end": 0, "context": "..."}
  ]
}`

// Candidate is one detected quotation span within a chunk.
//
// Start and End are advisory rune offsets of Literal within the chunk text as
// reported by the model. They are hints, not ground truth.
type Candidate struct {
	// Kind is the corpus the model believes the quotation belongs to.
	Kind refstore.Kind

	// Literal is the span exactly as transcribed, errors included.
	Literal string

	// Corrected is the model's reconstruction of the canonical wording.
	// Empty means the model considered the literal text already canonical.
	Corrected string

	// Start and End are advisory offsets (see type doc).
	Start int
	End   int

	// Context is a short surrounding snippet, used in adjudication prompts.
	Context string
}

// CorrectedOrLiteral returns Corrected when present, else Literal. This is
// the text the matcher embeds.
func (c Candidate) CorrectedOrLiteral() string {
	if c.Corrected != "" {
		return c.Corrected
	}
	return c.Literal
}

// llmResponse is the expected JSON structure returned by the model.
type llmResponse struct {
	References []struct {
		Kind      string `json:"kind"`
		Literal   string `json:"literal_text"`
		Corrected string `json:"corrected_text"`
		Start     int    `json:"start"`
		End       int    `json:"end"`
		Context   string `json:"context"`
	} `json:"references"`
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithTemperature sets the sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(d *Detector) {
		d.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 2048.
func WithMaxTokens(n int) Option {
	return func(d *Detector) {
		d.maxTokens = n
	}
}

// WithLogger sets the logger used for degradation warnings. Default:
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		d.log = l
	}
}

// Detector extracts candidate scripture references from transcript chunks.
// It is safe for concurrent use.
type Detector struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// New returns a new [Detector] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Detector {
	d := &Detector{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect runs the extraction prompt over one chunk of transcript text.
//
// Provider errors and unparseable replies degrade to an empty candidate list
// with a warning log; Detect never returns an error. Candidates with an
// unknown kind or empty literal text are dropped.
func (d *Detector) Detect(ctx context.Context, chunkText string) []Candidate {
	if strings.TrimSpace(chunkText) == "" {
		return nil
	}

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  d.temperature,
		MaxTokens:    d.maxTokens,
		Messages: []llm.Message{
			{Role: "user", Content: chunkText},
		},
	}

	resp, err := d.llm.Complete(ctx, req)
	if err != nil {
		d.log.Warn("reference detection failed, skipping chunk",
			"model", d.llm.ModelID(), "error", err)
		return nil
	}
	if resp == nil {
		d.log.Warn("empty detection response, skipping chunk",
			"model", d.llm.ModelID())
		return nil
	}

	candidates, err := parseResponse(resp.Content)
	if err != nil {
		d.log.Warn("unparseable detection response, skipping chunk",
			"model", d.llm.ModelID(), "error", err)
		return nil
	}
	return candidates
}

// parseResponse unmarshals the model reply, stripping markdown code fences
// first, and converts valid entries to candidates.
func parseResponse(content string) ([]Candidate, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(r.References))
	for _, ref := range r.References {
		kind := refstore.Kind(strings.ToLower(strings.TrimSpace(ref.Kind)))
		if !kind.Valid() || ref.Literal == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Kind:      kind,
			Literal:   ref.Literal,
			Corrected: ref.Corrected,
			Start:     ref.Start,
			End:       ref.End,
			Context:   ref.Context,
		})
	}
	return candidates, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
