package scorer

import (
	"context"
	"fmt"
	"strings"
	"time"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// ProviderType names a scorer implementation
type ProviderType string

const (
	// ProviderStatic is the offline lexical scorer (default)
	ProviderStatic ProviderType = "static"

	// ProviderHTTP is a remote cross-encoder server
	ProviderHTTP ProviderType = "http"
)

// ParseProvider validates a provider name (case-insensitive; empty = static).
func ParseProvider(name string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderStatic, nil
	case ProviderStatic, ProviderHTTP:
		return p, nil
	default:
		return "", rerrors.ConfigError(fmt.Sprintf("unknown scorer %q (want static or http)", name), nil)
	}
}

// Options selects and configures a scorer.
type Options struct {
	Provider   ProviderType
	Endpoint   string
	Model      string
	BatchSize  int
	MaxLength  int
	RawScores  bool
	Timeout    time.Duration
	MaxRetries int
}

// NewScorer builds the scorer named by opts.Provider.
func NewScorer(ctx context.Context, opts Options) (Scorer, error) {
	switch opts.Provider {
	case "", ProviderStatic:
		return NewStaticScorer(opts.MaxLength), nil

	case ProviderHTTP:
		cfg := DefaultHTTPConfig()
		if opts.Endpoint != "" {
			cfg.Endpoint = opts.Endpoint
		}
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		cfg.BatchSize = opts.BatchSize
		cfg.MaxLength = opts.MaxLength
		cfg.RawScores = opts.RawScores
		cfg.Timeout = opts.Timeout
		if opts.MaxRetries >= 0 {
			cfg.Retry.MaxRetries = opts.MaxRetries
		}
		return NewHTTPScorer(ctx, cfg)

	default:
		_, err := ParseProvider(string(opts.Provider))
		return nil, err
	}
}
