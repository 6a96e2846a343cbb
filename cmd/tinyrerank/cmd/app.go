package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/tinyrerank/internal/config"
	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/embed"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/scorer"
	"github.com/Aman-CERP/tinyrerank/internal/search"
	"github.com/Aman-CERP/tinyrerank/internal/telemetry"
)

// app is a fitted search pipeline over one corpus.
type app struct {
	cfg      *config.Config
	corpus   corpus.Corpus
	embedder embed.Embedder
	scorer   scorer.Scorer
	engine   *search.Engine
	metrics  *telemetry.Metrics
}

// loadCorpus reads the markdown records under root. An empty corpus is an
// error so that callers stop before constructing any capability.
func loadCorpus(ctx context.Context, cfg *config.Config, root string) (corpus.Corpus, error) {
	if root == "" {
		return nil, rerrors.ValidationError("--root is required", nil).
			WithSuggestion("pass the directory of markdown documents, e.g. --root ./docs")
	}

	loader, err := corpus.NewLoader(corpus.LoaderOptions{
		Include:     cfg.Corpus.Include,
		Exclude:     cfg.Corpus.Exclude,
		MaxFileSize: cfg.Corpus.MaxFileSize,
	})
	if err != nil {
		return nil, err
	}
	c, err := loader.Load(ctx, root)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return nil, rerrors.EmptyCorpusError(root)
	}
	return c, nil
}

// newApp loads the corpus, builds both capabilities and fits the retriever.
func newApp(ctx context.Context, cfg *config.Config, root string) (*app, error) {
	c, err := loadCorpus(ctx, cfg, root)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, corpus: c}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	embProvider, err := embed.ParseProvider(cfg.Embedder.Provider)
	if err != nil {
		return nil, err
	}
	a.embedder, err = embed.NewEmbedder(ctx, embed.Options{
		Provider:    embProvider,
		Model:       cfg.Embedder.Model,
		Host:        cfg.Embedder.Host,
		BaseURL:     cfg.Embedder.BaseURL,
		APIKey:      cfg.Embedder.APIKey,
		Dimensions:  cfg.Embedder.Dimensions,
		BatchSize:   cfg.Embedder.BatchSize,
		Concurrency: cfg.Embedder.Concurrency,
		Timeout:     cfg.Embedder.Timeout,
		MaxRetries:  cfg.Embedder.MaxRetries,
		CacheSize:   cfg.Embedder.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	scProvider, err := scorer.ParseProvider(cfg.Scorer.Provider)
	if err != nil {
		return nil, err
	}
	a.scorer, err = scorer.NewScorer(ctx, scorer.Options{
		Provider:   scProvider,
		Endpoint:   cfg.Scorer.Endpoint,
		Model:      cfg.Scorer.Model,
		BatchSize:  cfg.Scorer.BatchSize,
		MaxLength:  cfg.Scorer.MaxLength,
		RawScores:  cfg.Scorer.RawScores,
		Timeout:    cfg.Scorer.Timeout,
		MaxRetries: cfg.Scorer.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	retriever := search.NewRetriever(a.embedder)
	if err := retriever.Fit(ctx, c); err != nil {
		return nil, err
	}

	var opts []search.Option
	if cfg.Telemetry.Enabled {
		store, err := telemetry.OpenStore(cfg.Telemetry.Path)
		if err != nil {
			return nil, err
		}
		a.metrics = telemetry.NewMetrics(store, telemetry.DefaultConfig())
		opts = append(opts, search.WithRecorder(a.metrics))
	}
	a.engine = search.NewEngine(c, retriever, search.NewReranker(a.scorer), opts...)

	slog.Debug("app_ready",
		slog.String("root", root),
		slog.Int("records", c.Len()),
		slog.String("retriever_model", retriever.ModelName()),
		slog.String("reranker_model", a.scorer.ModelName()),
		slog.Bool("telemetry", a.metrics != nil))

	ok = true
	return a, nil
}

// Close releases the capabilities and the telemetry store.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Close())
	}
	if a.scorer != nil {
		errs = append(errs, a.scorer.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	return errors.Join(errs...)
}
