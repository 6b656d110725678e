// Package match implements the verification stage: for each detected
// candidate, find the best reference corpus entry and a confidence score.
//
// The [Matcher] embeds the candidate's corrected text together with its
// context gloss, queries the reference store for nearest neighbours with a
// deliberately loose threshold, and only when the vector signal is
// ambiguous asks a generative model to adjudicate among the close entries.
// Pure vector similarity is unreliable near its own resolution limit
// (paraphrase vs. wrong-but-adjacent verse), so the second context-aware pass
// runs only when scores cluster; clear winners skip it.
//
// Every failure path (embedding, store, adjudication) degrades to "no match,
// confidence 0". Match never returns an error to the caller.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/daleel-app/daleel/internal/detect"
	"github.com/daleel-app/daleel/internal/observe"
	"github.com/daleel-app/daleel/internal/refstore"
	"github.com/daleel-app/daleel/pkg/provider/embeddings"
	"github.com/daleel-app/daleel/pkg/provider/llm"
)

// Config holds the matching thresholds.
type Config struct {
	// SearchThreshold is the minimum cosine similarity for a corpus entry to
	// be considered at all. Deliberately looser than the final acceptance
	// threshold applied by the annotator.
	SearchThreshold float64

	// HighConfidence is the similarity above which the top entry wins without
	// adjudication.
	HighConfidence float64

	// TieMargin is the maximum gap between the top two similarities for the
	// result to count as ambiguous.
	TieMargin float64

	// SearchLimit is the nearest-neighbour result cap.
	SearchLimit int
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		SearchThreshold: 0.30,
		HighConfidence:  0.55,
		TieMargin:       0.05,
		SearchLimit:     5,
	}
}

// Match is the verification result for one candidate.
type Match struct {
	// Candidate is the detected span this match verifies.
	Candidate detect.Candidate

	// Entry is the winning corpus entry, nil when no match was found.
	Entry *refstore.Entry

	// Confidence is the similarity-derived confidence in [0, 1]. Zero when
	// Entry is nil. Adjudication changes which entry wins, never this number:
	// it is always the top pre-adjudication similarity.
	Confidence float64

	// Adjudicated reports whether the generative tie-break pass ran.
	Adjudicated bool
}

// adjudicationPrompt instructs the model to pick among close corpus entries.
const adjudicationPrompt = `You are an expert in Quranic Arabic and hadith literature.

A lecture transcript contains a quotation. Vector search found several canonical texts with nearly identical similarity scores. Decide which canonical entry, if any, the speaker is actually quoting.

Consider the surrounding context, partial wording, and common recitation patterns. If none of the entries is the actual source, choose null.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "chosen_index": <0-based index into the entry list, or null>,
  "confidence": <0.0-1.0>,
  "reasoning": "<one sentence>",
  "match_kind": "quran" | "hadith"
}`

// adjudicationResponse is the expected JSON reply from the adjudication call.
type adjudicationResponse struct {
	ChosenIndex *int    `json:"chosen_index"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
	MatchKind   string  `json:"match_kind"`
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithConfig overrides the default thresholds.
func WithConfig(cfg Config) Option {
	return func(m *Matcher) {
		m.cfg = cfg
	}
}

// WithLogger sets the logger used for degradation warnings. Default:
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Matcher) {
		m.log = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Matcher) {
		m.metrics = met
	}
}

// Matcher verifies detected candidates against the reference corpus.
// It is safe for concurrent use.
type Matcher struct {
	embedder embeddings.Provider
	store    refstore.Store
	llm      llm.Provider
	cfg      Config
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New returns a new [Matcher].
func New(embedder embeddings.Provider, store refstore.Store, provider llm.Provider, opts ...Option) *Matcher {
	m := &Matcher{
		embedder: embedder,
		store:    store,
		llm:      provider,
		cfg:      DefaultConfig(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m
}

// Match verifies one candidate. It never returns an error: embedding, store,
// and adjudication failures all degrade to a no-match result with
// confidence 0.
func (m *Matcher) Match(ctx context.Context, cand detect.Candidate) Match {
	noMatch := Match{Candidate: cand}

	vec, err := m.embedder.Embed(ctx, buildQuery(cand))
	if err != nil {
		m.log.Warn("candidate embedding failed, no match",
			"kind", cand.Kind, "error", err)
		return noMatch
	}

	results, err := m.search(ctx, vec, cand.Kind)
	if err != nil {
		m.log.Warn("reference search failed, no match",
			"kind", cand.Kind, "error", err)
		return noMatch
	}
	if len(results) == 0 {
		return noMatch
	}

	top := results[0].Similarity

	if !m.ambiguous(results) {
		entry := results[0].Entry
		return Match{Candidate: cand, Entry: &entry, Confidence: top}
	}

	chosen, ok := m.adjudicate(ctx, cand, results)
	if !ok {
		return Match{Candidate: cand, Adjudicated: true}
	}
	entry := results[chosen].Entry
	return Match{Candidate: cand, Entry: &entry, Confidence: top, Adjudicated: true}
}

// search queries the candidate's declared corpus, or both corpora when the
// kind is unset.
func (m *Matcher) search(ctx context.Context, vec []float32, kind refstore.Kind) ([]refstore.Result, error) {
	if kind.Valid() {
		return m.store.Nearest(ctx, vec, kind, m.cfg.SearchThreshold, m.cfg.SearchLimit)
	}
	return m.store.NearestMixed(ctx, vec, m.cfg.SearchThreshold, m.cfg.SearchLimit)
}

// ambiguous reports whether the similarity signal is too weak to trust
// directly: the top score is below HighConfidence and either there is no
// runner-up to separate it from, or the runner-up is within TieMargin.
func (m *Matcher) ambiguous(results []refstore.Result) bool {
	top := results[0].Similarity
	if top >= m.cfg.HighConfidence {
		return false
	}
	if len(results) == 1 {
		return true
	}
	return top-results[1].Similarity < m.cfg.TieMargin
}

// adjudicate runs the generative tie-break pass and returns the chosen result
// index. ok is false when the model chose null, the reply was unparseable,
// or the call failed. Each pass is counted by outcome: "chosen" when the
// model picked a usable entry, "rejected" when it chose null, "failed" when
// its reply was unusable.
func (m *Matcher) adjudicate(ctx context.Context, cand detect.Candidate, results []refstore.Result) (int, bool) {
	req := llm.CompletionRequest{
		SystemPrompt: adjudicationPrompt,
		Temperature:  0.1,
		MaxTokens:    512,
		Messages: []llm.Message{
			{Role: "user", Content: buildAdjudicationMessage(cand, results)},
		},
	}

	resp, err := m.llm.Complete(ctx, req)
	if err != nil {
		m.metrics.RecordAdjudication(ctx, "failed")
		m.log.Warn("adjudication call failed, no match",
			"kind", cand.Kind, "error", err)
		return 0, false
	}
	if resp == nil {
		m.metrics.RecordAdjudication(ctx, "failed")
		m.log.Warn("empty adjudication response, no match",
			"model", m.llm.ModelID())
		return 0, false
	}

	var r adjudicationResponse
	if err := json.Unmarshal([]byte(stripMarkdown(resp.Content)), &r); err != nil {
		m.metrics.RecordAdjudication(ctx, "failed")
		m.log.Warn("unparseable adjudication response, no match",
			"model", m.llm.ModelID(), "error", err)
		return 0, false
	}
	if r.ChosenIndex == nil {
		m.metrics.RecordAdjudication(ctx, "rejected")
		return 0, false
	}
	idx := *r.ChosenIndex
	if idx < 0 || idx >= len(results) {
		// Out-of-range index from the model: fall back to the vector winner.
		m.metrics.RecordAdjudication(ctx, "failed")
		return 0, true
	}
	m.metrics.RecordAdjudication(ctx, "chosen")
	return idx, true
}

// buildQuery composes the embedding query from the candidate's corrected
// wording and its context gloss.
func buildQuery(cand detect.Candidate) string {
	text := cand.CorrectedOrLiteral()
	if cand.Context == "" {
		return text
	}
	return text + "\n" + cand.Context
}

// buildAdjudicationMessage formats the candidate and the close corpus entries
// for the adjudication prompt.
func buildAdjudicationMessage(cand detect.Candidate, results []refstore.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Transcribed text: %s\n", cand.Literal)
	if cand.Corrected != "" {
		fmt.Fprintf(&sb, "Reconstructed wording: %s\n", cand.Corrected)
	}
	if cand.Context != "" {
		fmt.Fprintf(&sb, "Surrounding context: %s\n", cand.Context)
	}
	sb.WriteString("\nCandidate entries:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. [%s %s] (similarity %.3f) %s\n",
			i, r.Entry.Kind, r.Entry.Key, r.Similarity, r.Entry.Arabic)
	}
	return sb.String()
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
