// Package pipeline sequences the annotation stages over a whole transcript:
// chunk → detect → match → annotate → persist.
//
// Detection and verification fan out across a bounded worker pool; placement
// is a single serialized pass over one buffer, so the rewritten document is
// deterministic regardless of worker scheduling. Stage failures follow the
// one-chunk/one-candidate granularity: a failed model call costs the chunk or
// candidate it served, never the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/daleel-app/daleel/internal/annotate"
	"github.com/daleel-app/daleel/internal/arabic"
	"github.com/daleel-app/daleel/internal/detect"
	"github.com/daleel-app/daleel/internal/match"
	"github.com/daleel-app/daleel/internal/observe"
	"github.com/daleel-app/daleel/internal/transcriptstore"
)

// Config holds the orchestration parameters.
type Config struct {
	// MaxChunkChars is the chunking size limit in characters.
	MaxChunkChars int

	// Concurrency bounds the detection and verification worker pools.
	Concurrency int

	// AcceptThreshold is the confidence gate applied at placement.
	AcceptThreshold float64
}

// DefaultConfig returns the reference orchestration parameters.
func DefaultConfig() Config {
	return Config{
		MaxChunkChars:   3000,
		Concurrency:     4,
		AcceptThreshold: annotate.DefaultThreshold,
	}
}

// Option is a functional option for configuring a [Processor].
type Option func(*Processor)

// WithConfig overrides the default orchestration parameters.
func WithConfig(cfg Config) Option {
	return func(p *Processor) {
		p.cfg = cfg
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.log = l
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// Processor runs the full annotation pipeline over stored transcripts.
// It is safe for concurrent use; concurrent runs over the same transcript
// are rejected by the store's status guard.
type Processor struct {
	store    transcriptstore.Store
	detector *detect.Detector
	matcher  *match.Matcher
	cfg      Config
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New returns a new [Processor].
func New(store transcriptstore.Store, detector *detect.Detector, matcher *match.Matcher, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		detector: detector,
		matcher:  matcher,
		cfg:      DefaultConfig(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Process runs the pipeline over the transcript with the given ID.
//
// The transcript must be in a startable state; a run already in progress (or
// an already complete transcript) surfaces as transcriptstore.ErrConflict.
// After processing has begun, any error is recorded on the transcript via
// FailProcessing before being returned, so the status machine always reaches
// a terminal state.
func (p *Processor) Process(ctx context.Context, id uuid.UUID) error {
	t, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := p.store.BeginProcessing(ctx, id); err != nil {
		return err
	}

	start := time.Now()
	p.metrics.ActiveRuns.Add(ctx, 1)
	defer func() {
		p.metrics.ActiveRuns.Add(ctx, -1)
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	res, stats, err := p.run(ctx, t.Text)
	if err != nil {
		return p.fail(ctx, id, err)
	}

	anns := toRecords(res.Annotations)
	if err := p.store.InsertAnnotations(ctx, id, anns); err != nil {
		return p.fail(ctx, id, err)
	}
	if err := p.store.CompleteProcessing(ctx, id, res.Text, stats); err != nil {
		return p.fail(ctx, id, err)
	}

	p.log.Info("transcript processed",
		"transcript", id,
		"detected", stats.TotalDetected,
		"placed", stats.QuranPlaced+stats.HadithPlaced,
		"skipped", stats.LowConfidenceSkipped,
		"unplaced", stats.Unplaced,
		"duration", time.Since(start))
	return nil
}

// run executes the in-memory stages over the transcript text.
func (p *Processor) run(ctx context.Context, text string) (annotate.Result, transcriptstore.Stats, error) {
	segments := arabic.Chunk(text, p.cfg.MaxChunkChars)

	candidates, err := p.detectAll(ctx, segments)
	if err != nil {
		return annotate.Result{}, transcriptstore.Stats{}, err
	}

	matches, err := p.matchAll(ctx, candidates)
	if err != nil {
		return annotate.Result{}, transcriptstore.Stats{}, err
	}

	res := annotate.Annotate(text, matches, p.cfg.AcceptThreshold)
	for _, a := range res.Annotations {
		p.metrics.AnnotationsPlaced.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("kind", string(a.Kind))))
	}

	stats := transcriptstore.Stats{
		TotalDetected:        len(candidates),
		TotalMatches:         res.Stats.TotalMatches,
		QuranPlaced:          res.Stats.QuranPlaced,
		HadithPlaced:         res.Stats.HadithPlaced,
		LowConfidenceSkipped: res.Stats.LowConfidenceSkipped,
		Unplaced:             res.Stats.Unplaced,
	}
	return res, stats, nil
}

// detectAll fans the detector out over all segments and returns the combined
// candidate list in segment order, advisory offsets rebased to the document.
func (p *Processor) detectAll(ctx context.Context, segments []arabic.Segment) ([]detect.Candidate, error) {
	perChunk := make([][]detect.Candidate, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, seg := range segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunkStart := time.Now()
			cands := p.detector.Detect(gctx, seg.Text)
			p.metrics.DetectDuration.Record(gctx, time.Since(chunkStart).Seconds())

			for j := range cands {
				cands[j].Start += seg.Offset
				cands[j].End += seg.Offset
			}
			perChunk[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: detection cancelled: %w", err)
	}

	var all []detect.Candidate
	for _, cands := range perChunk {
		all = append(all, cands...)
	}
	for _, c := range all {
		p.metrics.CandidatesDetected.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("kind", string(c.Kind))))
	}
	return all, nil
}

// matchAll fans the matcher out over all candidates, preserving detection
// order in the result slice.
func (p *Processor) matchAll(ctx context.Context, candidates []detect.Candidate) ([]match.Match, error) {
	matches := make([]match.Match, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, cand := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candStart := time.Now()
			matches[i] = p.matcher.Match(gctx, cand)
			p.metrics.MatchDuration.Record(gctx, time.Since(candStart).Seconds())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: verification cancelled: %w", err)
	}
	return matches, nil
}

// fail records the failure cause on the transcript and returns the original
// error. A failure of FailProcessing itself is logged, not returned: the
// first error is the one the caller needs.
func (p *Processor) fail(ctx context.Context, id uuid.UUID, cause error) error {
	if err := p.store.FailProcessing(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		p.log.Error("failed to record run failure",
			"transcript", id, "cause", cause, "error", err)
	}
	return cause
}

// toRecords converts placed annotations to persistence records.
func toRecords(anns []annotate.Annotation) []transcriptstore.Annotation {
	records := make([]transcriptstore.Annotation, len(anns))
	for i, a := range anns {
		records[i] = transcriptstore.Annotation{
			Kind:        a.Kind,
			Key:         a.Key,
			Label:       a.Label,
			Confidence:  a.Confidence,
			Start:       a.Start,
			End:         a.End,
			Adjudicated: a.Adjudicated,
		}
	}
	return records
}
