package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/daleel-app/daleel/internal/arabic"
	"github.com/daleel-app/daleel/internal/refstore"
	"github.com/daleel-app/daleel/pkg/provider/embeddings"
)

// seedBatchSize bounds how many corpus texts are embedded per provider call.
const seedBatchSize = 64

// corpusEntry is the YAML schema for one corpus file entry.
type corpusEntry struct {
	Key             string `yaml:"key"`
	Label           string `yaml:"label"`
	Arabic          string `yaml:"arabic"`
	English         string `yaml:"english"`
	Transliteration string `yaml:"transliteration"`
	Grade           string `yaml:"grade"`
	Narrator        string `yaml:"narrator"`
}

// runSeed loads corpus files, embeds their normalized Arabic text, and
// upserts them into the reference store.
func runSeed(ctx context.Context, store refstore.Store, embedder embeddings.Provider, args []string) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	versesPath := fs.String("verses", "", "path to the verses corpus YAML file")
	traditionsPath := fs.String("traditions", "", "path to the traditions corpus YAML file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *versesPath == "" && *traditionsPath == "" {
		fmt.Fprintln(os.Stderr, "daleel: usage: seed -verses verses.yaml -traditions traditions.yaml (at least one)")
		return 2
	}

	if *versesPath != "" {
		n, err := seedFile(ctx, store, embedder, refstore.KindQuran, *versesPath)
		if err != nil {
			slog.Error("verse seeding failed", "file", *versesPath, "err", err)
			return 1
		}
		slog.Info("verses seeded", "file", *versesPath, "entries", n)
	}
	if *traditionsPath != "" {
		n, err := seedFile(ctx, store, embedder, refstore.KindHadith, *traditionsPath)
		if err != nil {
			slog.Error("tradition seeding failed", "file", *traditionsPath, "err", err)
			return 1
		}
		slog.Info("traditions seeded", "file", *traditionsPath, "entries", n)
	}
	return 0
}

// seedFile loads one corpus file and upserts its entries in batches.
func seedFile(ctx context.Context, store refstore.Store, embedder embeddings.Provider, kind refstore.Kind, path string) (int, error) {
	raw, err := loadCorpus(path)
	if err != nil {
		return 0, err
	}

	entries := make([]refstore.Entry, 0, len(raw))
	for i, ce := range raw {
		if ce.Key == "" {
			return 0, fmt.Errorf("entry %d has no key", i)
		}
		if ce.Arabic == "" {
			return 0, fmt.Errorf("entry %q has no arabic text", ce.Key)
		}
		entries = append(entries, refstore.Entry{
			Kind:            kind,
			Key:             ce.Key,
			Label:           ce.Label,
			Arabic:          ce.Arabic,
			Normalized:      arabic.NormalizeScript(ce.Arabic),
			English:         ce.English,
			Transliteration: ce.Transliteration,
			Grade:           ce.Grade,
			Narrator:        ce.Narrator,
		})
	}

	for start := 0; start < len(entries); start += seedBatchSize {
		end := min(start+seedBatchSize, len(entries))
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Normalized
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch at %d: %w", start, err)
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}

		switch kind {
		case refstore.KindQuran:
			err = store.SeedVerses(ctx, batch)
		case refstore.KindHadith:
			err = store.SeedTraditions(ctx, batch)
		}
		if err != nil {
			return 0, fmt.Errorf("seed batch at %d: %w", start, err)
		}
	}
	return len(entries), nil
}

// loadCorpus reads a YAML corpus file: a list of entries.
func loadCorpus(path string) ([]corpusEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	var entries []corpusEntry
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	return entries, nil
}
