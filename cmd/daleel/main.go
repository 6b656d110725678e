// Command daleel annotates Islamic lecture transcripts with canonical Quran
// and hadith references.
//
// Usage:
//
//	daleel [-config config.yaml] migrate
//	daleel [-config config.yaml] seed -verses verses.yaml -traditions traditions.yaml
//	daleel [-config config.yaml] add [-title "..."] transcript.txt
//	daleel [-config config.yaml] process <transcript-id>
//	daleel [-config config.yaml] show <transcript-id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/daleel-app/daleel/internal/annotate"
	"github.com/daleel-app/daleel/internal/config"
	"github.com/daleel-app/daleel/internal/detect"
	"github.com/daleel-app/daleel/internal/health"
	"github.com/daleel-app/daleel/internal/match"
	"github.com/daleel-app/daleel/internal/observe"
	"github.com/daleel-app/daleel/internal/pipeline"
	refpg "github.com/daleel-app/daleel/internal/refstore/postgres"
	"github.com/daleel-app/daleel/internal/resilience"
	"github.com/daleel-app/daleel/internal/transcriptstore"
	"github.com/daleel-app/daleel/pkg/provider/embeddings"
	ollamaembed "github.com/daleel-app/daleel/pkg/provider/embeddings/ollama"
	oaembed "github.com/daleel-app/daleel/pkg/provider/embeddings/openai"
	"github.com/daleel-app/daleel/pkg/provider/llm"
	"github.com/daleel-app/daleel/pkg/provider/llm/anyllm"
	oallm "github.com/daleel-app/daleel/pkg/provider/llm/openai"
)

const defaultEmbeddingDimensions = 1536

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()
	args := flag.Args()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "daleel: missing command; one of: migrate, seed, add, process, show")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "daleel: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "daleel: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "daleel"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	dims := cfg.Database.EmbeddingDimensions
	if dims <= 0 {
		dims = defaultEmbeddingDimensions
	}
	refStore, pool, err := refpg.Connect(ctx, cfg.Database.PostgresDSN, dims)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer pool.Close()
	trStore := transcriptstore.NewPostgresStore(pool)

	if cfg.Server.MetricsAddr != "" {
		go serveMetrics(cfg.Server.MetricsAddr,
			health.Checker{Name: "database", Check: pool.Ping})
	}

	switch args[0] {
	case "migrate":
		if err := refStore.Migrate(ctx); err != nil {
			slog.Error("reference corpus migration failed", "err", err)
			return 1
		}
		if err := trStore.Migrate(ctx); err != nil {
			slog.Error("transcript store migration failed", "err", err)
			return 1
		}
		slog.Info("schema up to date")
		return 0

	case "seed":
		embedder, err := buildEmbeddings(cfg)
		if err != nil {
			slog.Error("failed to build embeddings provider", "err", err)
			return 1
		}
		return runSeed(ctx, refStore, embedder, args[1:])

	case "add":
		return runAdd(ctx, trStore, args[1:])

	case "process":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "daleel: usage: process <transcript-id>")
			return 2
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "daleel: invalid transcript id %q: %v\n", args[1], err)
			return 2
		}

		proc, err := buildProcessor(cfg, refStore, trStore)
		if err != nil {
			slog.Error("failed to build pipeline", "err", err)
			return 1
		}
		if err := proc.Process(ctx, id); err != nil {
			if errors.Is(err, transcriptstore.ErrConflict) {
				fmt.Fprintf(os.Stderr, "daleel: transcript %s is already processing or complete\n", id)
				return 1
			}
			slog.Error("processing failed", "transcript", id, "err", err)
			return 1
		}
		return 0

	case "show":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "daleel: usage: show <transcript-id>")
			return 2
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "daleel: invalid transcript id %q: %v\n", args[1], err)
			return 2
		}
		return runShow(ctx, trStore, id)

	default:
		fmt.Fprintf(os.Stderr, "daleel: unknown command %q; one of: migrate, seed, add, process, show\n", args[0])
		return 2
	}
}

// runAdd stores a new transcript from a text file and prints its ID.
func runAdd(ctx context.Context, store transcriptstore.Store, args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	title := fs.String("title", "", "transcript title")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "daleel: usage: add [-title \"...\"] transcript.txt")
		return 2
	}

	text, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "daleel: read transcript: %v\n", err)
		return 1
	}

	t := &transcriptstore.Transcript{Title: *title, Text: string(text)}
	if err := store.Create(ctx, t); err != nil {
		slog.Error("failed to store transcript", "err", err)
		return 1
	}
	fmt.Println(t.ID)
	return 0
}

// runShow prints a transcript's status, annotated text, and annotations.
func runShow(ctx context.Context, store transcriptstore.Store, id uuid.UUID) int {
	t, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, transcriptstore.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "daleel: transcript %s not found\n", id)
			return 1
		}
		slog.Error("failed to load transcript", "err", err)
		return 1
	}

	fmt.Printf("id:     %s\n", t.ID)
	fmt.Printf("title:  %s\n", t.Title)
	fmt.Printf("status: %s\n", t.Status)
	if t.Status == transcriptstore.StatusError {
		fmt.Printf("error:  %s\n", t.ErrorMessage)
	}
	if t.Status == transcriptstore.StatusComplete {
		fmt.Printf("stats:  detected=%d placed=%d/%d skipped=%d unplaced=%d\n",
			t.Stats.TotalDetected,
			t.Stats.QuranPlaced+t.Stats.HadithPlaced, t.Stats.TotalMatches,
			t.Stats.LowConfidenceSkipped, t.Stats.Unplaced)
		fmt.Println()
		fmt.Println(t.AnnotatedText)

		anns, err := store.ListAnnotations(ctx, id)
		if err != nil {
			slog.Error("failed to list annotations", "err", err)
			return 1
		}
		if len(anns) > 0 {
			fmt.Println()
			for _, a := range anns {
				fmt.Printf("%6d-%-6d %-7s %-16s %.2f  %s\n",
					a.Start, a.End, a.Kind, a.Key, a.Confidence, a.Label)
			}
		}
	}
	return 0
}

// buildProcessor wires the full pipeline from configuration.
func buildProcessor(cfg *config.Config, refStore *refpg.Store, trStore transcriptstore.Store) (*pipeline.Processor, error) {
	llmProvider, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := buildEmbeddings(cfg)
	if err != nil {
		return nil, err
	}

	// Circuit-breaker wrappers: a backend outage sheds the remaining calls of
	// a run instead of timing out chunk by chunk. They also count every
	// provider request and error for the scrape endpoint.
	guardedLLM := resilience.NewLLMFallback(llmProvider, cfg.Providers.LLM.Name,
		resilience.FallbackConfig{Metrics: observe.DefaultMetrics()})
	guardedEmbed := resilience.NewEmbeddingsFallback(embedder, cfg.Providers.Embeddings.Name,
		resilience.FallbackConfig{Metrics: observe.DefaultMetrics()})

	detector := detect.New(guardedLLM)
	matcher := match.New(guardedEmbed, refStore, guardedLLM,
		match.WithConfig(matchConfig(cfg)))

	return pipeline.New(trStore, detector, matcher,
		pipeline.WithConfig(pipelineConfig(cfg))), nil
}

// buildLLM constructs the configured LLM provider. The native OpenAI client
// is used for "openai"; every other backend goes through the universal
// any-llm provider.
func buildLLM(cfg *config.Config) (llm.Provider, error) {
	entry := cfg.Providers.LLM
	if entry.Name == "" {
		return nil, fmt.Errorf("providers.llm is not configured")
	}

	if entry.Name == "openai" {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return oallm.New(apiKey, entry.Model, opts...)
	}

	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// buildEmbeddings constructs the configured embeddings provider.
func buildEmbeddings(cfg *config.Config) (embeddings.Provider, error) {
	entry := cfg.Providers.Embeddings
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if d := cfg.Database.EmbeddingDimensions; d > 0 {
			opts = append(opts, oaembed.WithDimensions(d))
		}
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return oaembed.New(apiKey, entry.Model, opts...)
	case "ollama":
		var opts []ollamaembed.Option
		if d := cfg.Database.EmbeddingDimensions; d > 0 {
			opts = append(opts, ollamaembed.WithDimensions(d))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	case "":
		return nil, fmt.Errorf("providers.embeddings is not configured")
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// matchConfig overlays configured matching thresholds on the defaults.
func matchConfig(cfg *config.Config) match.Config {
	mc := match.DefaultConfig()
	if cfg.Matching.SearchThreshold > 0 {
		mc.SearchThreshold = cfg.Matching.SearchThreshold
	}
	if cfg.Matching.HighConfidence > 0 {
		mc.HighConfidence = cfg.Matching.HighConfidence
	}
	if cfg.Matching.TieMargin > 0 {
		mc.TieMargin = cfg.Matching.TieMargin
	}
	if cfg.Matching.SearchLimit > 0 {
		mc.SearchLimit = cfg.Matching.SearchLimit
	}
	return mc
}

// pipelineConfig overlays configured pipeline parameters on the defaults.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	if cfg.Pipeline.MaxChunkChars > 0 {
		pc.MaxChunkChars = cfg.Pipeline.MaxChunkChars
	}
	if cfg.Pipeline.Concurrency > 0 {
		pc.Concurrency = cfg.Pipeline.Concurrency
	}
	if cfg.Pipeline.AcceptThreshold > 0 {
		pc.AcceptThreshold = cfg.Pipeline.AcceptThreshold
	} else {
		pc.AcceptThreshold = annotate.DefaultThreshold
	}
	return pc
}

// serveMetrics exposes the Prometheus scrape endpoint together with liveness
// and readiness probes.
func serveMetrics(addr string, checkers ...health.Checker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics endpoint failed", "err", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
