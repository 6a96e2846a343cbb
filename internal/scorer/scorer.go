// Package scorer provides the pairwise relevance capability used by the
// reranker: it scores (query, document) pairs jointly, higher meaning more
// relevant.
package scorer

import (
	"context"
	"time"
)

// Scorer configuration defaults
const (
	// DefaultBatchSize is the number of pairs scored per model call
	DefaultBatchSize = 16

	// DefaultMaxLength is the token budget per pair
	DefaultMaxLength = 512

	// DefaultTimeout is the per-request timeout for remote scorers
	DefaultTimeout = 30 * time.Second

	// DefaultModel is the cross-encoder requested from remote servers
	DefaultModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"
)

// Pair is one query/document pair to score.
type Pair struct {
	Query    string
	Document string
}

// Scorer scores query/document pairs. Implementations return exactly one
// score per pair, in input order.
type Scorer interface {
	// Score returns one relevance score per pair
	Score(ctx context.Context, pairs []Pair) ([]float64, error)

	// ModelName returns the model identifier
	ModelName() string

	// Close releases resources
	Close() error
}
