// Package embed provides the embedding capability used by the retriever:
// text in, unit-length float32 vectors out.
package embed

import (
	"context"
	"time"

	"github.com/viterin/vek/vek32"
)

// Common embedding constants
const (
	// MaxBatchSize is the maximum allowed sub-batch size for remote providers
	MaxBatchSize = 256

	// DefaultBatchSize is the default sub-batch size for remote providers
	DefaultBatchSize = 32

	// DefaultConcurrency bounds in-flight sub-batch requests
	DefaultConcurrency = 4

	// DefaultTimeout is the per-request timeout for remote providers
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the embedding dimension for the static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input in order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension (0 until known)
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// Normalize returns a unit-length copy of v. Zero vectors are copied as-is.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	NormalizeInPlace(out)
	return out
}

// NormalizeInPlace scales v to unit length. Zero vectors are left unchanged.
func NormalizeInPlace(v []float32) {
	if len(v) == 0 {
		return
	}
	norm := vek32.Norm(v)
	if norm == 0 || norm != norm {
		return
	}
	vek32.MulNumber_Inplace(v, 1/norm)
}

// toFloat32 converts a float64 vector as decoded from JSON APIs.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
