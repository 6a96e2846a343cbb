package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/viterin/partial"
	"github.com/viterin/vek/vek32"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/embed"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// Hit is a retrieved corpus index with its similarity to the query.
type Hit struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Retriever ranks corpus records by exact inner product between the
// normalized query embedding and a matrix of normalized record embeddings.
// Row i of the matrix is corpus record i.
type Retriever struct {
	embedder embed.Embedder

	mu     sync.RWMutex
	matrix [][]float32
	dims   int
}

// NewRetriever creates an unfitted retriever.
func NewRetriever(e embed.Embedder) *Retriever {
	return &Retriever{embedder: e}
}

// Fit embeds every record and replaces the matrix. On error the previous
// matrix is kept.
func (r *Retriever) Fit(ctx context.Context, records []corpus.Record) error {
	if len(records) == 0 {
		return rerrors.New(rerrors.ErrCodeEmptyCorpus, "cannot fit retriever on an empty corpus", nil)
	}

	start := time.Now()
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.EmbeddingText()
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(records) {
		return rerrors.New(rerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d records", len(vectors), len(records)), nil)
	}

	dims := len(vectors[0])
	if dims == 0 {
		return rerrors.New(rerrors.ErrCodeEmbeddingFailed, "embedder returned empty vectors", nil)
	}

	matrix := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return rerrors.New(rerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("record %d has dimension %d, expected %d", i, len(v), dims), nil)
		}
		matrix[i] = embed.Normalize(v)
	}

	r.mu.Lock()
	r.matrix = matrix
	r.dims = dims
	r.mu.Unlock()

	slog.Debug("retriever_fit",
		slog.Int("records", len(records)),
		slog.Int("dims", dims),
		slog.String("model", r.embedder.ModelName()),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Query returns the indices of the k most similar records, best first.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]int, error) {
	hits, err := r.QueryScored(ctx, text, k)
	if err != nil {
		return nil, err
	}
	indices := make([]int, len(hits))
	for i, h := range hits {
		indices[i] = h.Index
	}
	return indices, nil
}

// QueryScored is Query with similarity scores. Equal scores are ordered by
// ascending index.
func (r *Retriever) QueryScored(ctx context.Context, text string, k int) ([]Hit, error) {
	r.mu.RLock()
	matrix, dims := r.matrix, r.dims
	r.mu.RUnlock()

	if matrix == nil {
		return nil, rerrors.New(rerrors.ErrCodeNotFitted, "retriever queried before fit", nil).
			WithSuggestion("call Fit with the corpus before querying")
	}

	k = min(max(k, 0), len(matrix))
	if k == 0 {
		return []Hit{}, nil
	}

	vectors, err := r.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for 1 query", len(vectors)), nil)
	}
	query := embed.Normalize(vectors[0])
	if len(query) != dims {
		return nil, rerrors.New(rerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has dimension %d, index has %d", len(query), dims), nil).
			WithSuggestion("use the same embedder for fitting and querying")
	}

	hits := make([]Hit, len(matrix))
	for i, row := range matrix {
		hits[i] = Hit{Index: i, Score: vek32.Dot(query, row)}
	}

	partial.SortFunc(hits, k, compareHits)
	return hits[:k:k], nil
}

// compareHits orders hits by descending score, NaN last, then ascending
// index.
func compareHits(a, b Hit) int {
	aNaN, bNaN := math.IsNaN(float64(a.Score)), math.IsNaN(float64(b.Score))
	switch {
	case aNaN && !bNaN:
		return 1
	case !aNaN && bNaN:
		return -1
	case !aNaN && a.Score != b.Score:
		return cmp.Compare(b.Score, a.Score)
	}
	return cmp.Compare(a.Index, b.Index)
}

// Size returns the number of fitted records.
func (r *Retriever) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matrix)
}

// Dimensions returns the fitted embedding dimension (0 before Fit).
func (r *Retriever) Dimensions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dims
}

// Fitted reports whether Fit has succeeded at least once.
func (r *Retriever) Fitted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matrix != nil
}

// ModelName returns the embedder's model identifier.
func (r *Retriever) ModelName() string {
	return r.embedder.ModelName()
}
