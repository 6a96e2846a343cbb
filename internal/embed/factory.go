package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, default)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses any OpenAI-compatible /embeddings endpoint
	ProviderOpenAI ProviderType = "openai"
)

// Providers lists the accepted provider names.
var Providers = []ProviderType{ProviderStatic, ProviderOllama, ProviderOpenAI}

// ParseProvider validates a provider name (case-insensitive; empty = static).
func ParseProvider(name string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderStatic, nil
	case ProviderStatic, ProviderOllama, ProviderOpenAI:
		return p, nil
	default:
		return "", rerrors.ConfigError(fmt.Sprintf("unknown embedder %q (want static, ollama or openai)", name), nil)
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider ProviderType
	Model    string

	// Host is the Ollama endpoint; BaseURL the OpenAI-compatible endpoint.
	Host    string
	BaseURL string
	APIKey  string

	Dimensions  int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
	MaxRetries  int

	// CacheSize wraps the embedder in an LRU cache (0 = DefaultCacheSize,
	// negative disables caching).
	CacheSize int
}

// NewEmbedder builds the embedder named by opts.Provider. There is no
// silent fallback between providers: an unreachable backend is an error.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch opts.Provider {
	case "", ProviderStatic:
		embedder = NewStaticEmbedderWithDims(opts.Dimensions)

	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if opts.Host != "" {
			cfg.Host = opts.Host
		}
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		cfg.Dimensions = opts.Dimensions
		if opts.BatchSize > 0 {
			cfg.BatchSize = opts.BatchSize
		}
		if opts.Concurrency > 0 {
			cfg.Concurrency = opts.Concurrency
		}
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		if opts.MaxRetries >= 0 {
			cfg.Retry.MaxRetries = opts.MaxRetries
		}
		embedder, err = NewOllamaEmbedder(ctx, cfg)

	case ProviderOpenAI:
		embedder = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
		})

	default:
		_, err = ParseProvider(string(opts.Provider))
	}
	if err != nil {
		return nil, err
	}

	if opts.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Bool("cached", opts.CacheSize >= 0))

	return embedder, nil
}
