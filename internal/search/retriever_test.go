package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/embed"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

func TestRetriever_Query_OrdersBySimilarity(t *testing.T) {
	// Given: three records where doc2 is closest to the query
	c, e, _ := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	// When: querying for all three
	hits, err := r.QueryScored(context.Background(), "query", 3)

	// Then: doc2, doc1, doc3 by index
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].Index)
	assert.Equal(t, 0, hits[1].Index)
	assert.Equal(t, 2, hits[2].Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestRetriever_Fit_EmbedsAllRecordsInOneBatch(t *testing.T) {
	c, e, _ := threeDocs()
	r := NewRetriever(e)

	require.NoError(t, r.Fit(context.Background(), c))

	require.Equal(t, 1, e.calls)
	assert.Equal(t, []string{c[0].EmbeddingText(), c[1].EmbeddingText(), c[2].EmbeddingText()}, e.batches[0])
	assert.Equal(t, 3, r.Size())
	assert.Equal(t, 2, r.Dimensions())
	assert.True(t, r.Fitted())
}

func TestRetriever_Query_EmbedsQueryOnce(t *testing.T) {
	c, e, _ := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	_, err := r.Query(context.Background(), "needle", 2)

	require.NoError(t, err)
	require.Equal(t, 2, e.calls)
	assert.Equal(t, []string{"needle"}, e.batches[1])
}

func TestRetriever_Query_NormalizesVectors(t *testing.T) {
	// Given: unnormalized vectors of different lengths pointing the same way
	c := corpus.Corpus{{ID: "long", Title: "long"}, {ID: "short", Title: "short"}}
	e := &stubEmbedder{
		vectors: map[string][]float32{
			c[0].EmbeddingText(): {10, 0},
			c[1].EmbeddingText(): {0.1, 0.1},
		},
		fallback: []float32{3, 0},
	}
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	// When: querying
	hits, err := r.QueryScored(context.Background(), "q", 2)

	// Then: scores are cosine similarities, not raw dot products
	require.NoError(t, err)
	assert.Equal(t, 0, hits[0].Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
}

func TestRetriever_Query_ClampsK(t *testing.T) {
	c, e, _ := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	tests := []struct {
		k    int
		want int
	}{
		{-1, 0},
		{0, 0},
		{1, 1},
		{3, 3},
		{100, 3},
	}
	for _, tt := range tests {
		got, err := r.Query(context.Background(), "q", tt.k)
		require.NoError(t, err)
		assert.Len(t, got, tt.want, "k=%d", tt.k)
		assert.NotNil(t, got)
	}
}

func TestRetriever_Query_TiesByAscendingIndex(t *testing.T) {
	// Given: five identical records
	c := corpus.Corpus{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	e := &stubEmbedder{fallback: []float32{1, 1}}
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	// When: selecting three
	got, err := r.Query(context.Background(), "q", 3)

	// Then: lowest indices win, in order
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestRetriever_Query_Properties(t *testing.T) {
	// Given: a synthetic corpus with the static embedder
	c := syntheticCorpus(200)
	r := NewRetriever(embed.NewStaticEmbedder())
	require.NoError(t, r.Fit(context.Background(), c))

	for _, k := range []int{0, 1, 7, 50, 200, 500} {
		// When: querying
		hits, err := r.QueryScored(context.Background(), "topic 3 words", k)
		require.NoError(t, err)

		// Then: min(k, N) distinct indices, non-increasing scores
		assert.Len(t, hits, min(k, len(c)))
		seen := make(map[int]bool)
		for i, h := range hits {
			assert.False(t, seen[h.Index], "duplicate index %d", h.Index)
			seen[h.Index] = true
			if i > 0 {
				assert.LessOrEqual(t, h.Score, hits[i-1].Score)
			}
		}
	}
}

func TestRetriever_Query_TopKMatchesFullSort(t *testing.T) {
	c := syntheticCorpus(300)
	r := NewRetriever(embed.NewStaticEmbedder())
	require.NoError(t, r.Fit(context.Background(), c))

	all, err := r.QueryScored(context.Background(), "document about topic", len(c))
	require.NoError(t, err)
	top, err := r.QueryScored(context.Background(), "document about topic", 10)
	require.NoError(t, err)

	assert.Equal(t, all[:10], top)
}

func TestRetriever_Fit_Idempotent(t *testing.T) {
	c := syntheticCorpus(50)
	r := NewRetriever(embed.NewStaticEmbedder())
	require.NoError(t, r.Fit(context.Background(), c))
	first, err := r.Query(context.Background(), "topic 5", 20)
	require.NoError(t, err)

	require.NoError(t, r.Fit(context.Background(), c))
	second, err := r.Query(context.Background(), "topic 5", 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRetriever_Query_NotFitted(t *testing.T) {
	_, e, _ := threeDocs()
	r := NewRetriever(e)

	_, err := r.Query(context.Background(), "q", 3)

	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrNotFitted)
	assert.True(t, rerrors.IsFatal(err))
	assert.Equal(t, 0, e.calls)
}

func TestRetriever_Fit_EmptyCorpus(t *testing.T) {
	_, e, _ := threeDocs()
	r := NewRetriever(e)

	err := r.Fit(context.Background(), nil)

	assert.ErrorIs(t, err, rerrors.ErrEmptyCorpus)
	assert.False(t, r.Fitted())
}

func TestRetriever_Fit_FailureKeepsPreviousMatrix(t *testing.T) {
	// Given: a fitted retriever
	c, e, _ := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	// When: a refit fails in the embedder
	boom := errors.New("model exploded")
	e.err = boom
	err := r.Fit(context.Background(), c[:1])

	// Then: the error is returned verbatim and the old matrix remains
	assert.Same(t, boom, err)
	assert.Equal(t, 3, r.Size())
}

func TestRetriever_Fit_RaggedVectors(t *testing.T) {
	c := corpus.Corpus{{ID: "a", Title: "a"}, {ID: "b", Title: "b"}}
	e := &stubEmbedder{
		vectors:  map[string][]float32{c[1].EmbeddingText(): {1, 2, 3}},
		fallback: []float32{1, 0},
	}

	err := NewRetriever(e).Fit(context.Background(), c)

	assert.Equal(t, rerrors.ErrCodeDimensionMismatch, rerrors.GetCode(err))
}

func TestRetriever_Query_DimensionMismatch(t *testing.T) {
	c, e, _ := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	e.vectors["other"] = []float32{1, 0, 0}
	_, err := r.Query(context.Background(), "other", 2)

	assert.Equal(t, rerrors.ErrCodeDimensionMismatch, rerrors.GetCode(err))
}

func TestRetriever_Query_CapabilityErrorVerbatim(t *testing.T) {
	c, e, _ := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	boom := rerrors.NetworkError("ollama down", nil)
	e.err = boom
	_, err := r.Query(context.Background(), "q", 2)

	assert.Same(t, boom, err)
}

func TestCompareHits(t *testing.T) {
	nan := float32(math.NaN())

	tests := []struct {
		name string
		a, b Hit
		want int
	}{
		{"higher score first", Hit{Index: 5, Score: 0.9}, Hit{Index: 1, Score: 0.5}, -1},
		{"lower score after", Hit{Index: 1, Score: 0.5}, Hit{Index: 5, Score: 0.9}, 1},
		{"tie goes to lower index", Hit{Index: 1, Score: 0.5}, Hit{Index: 2, Score: 0.5}, -1},
		{"tie reversed", Hit{Index: 2, Score: 0.5}, Hit{Index: 1, Score: 0.5}, 1},
		{"same hit", Hit{Index: 3, Score: 0.5}, Hit{Index: 3, Score: 0.5}, 0},
		{"number before NaN", Hit{Index: 9, Score: -1}, Hit{Index: 0, Score: nan}, -1},
		{"NaN after number", Hit{Index: 0, Score: nan}, Hit{Index: 9, Score: -1}, 1},
		{"NaNs by index", Hit{Index: 0, Score: nan}, Hit{Index: 1, Score: nan}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareHits(tt.a, tt.b))
		})
	}
}

func TestRetriever_QueryScored_TopKMatchesFullRanking(t *testing.T) {
	// Given: many records sharing a handful of distinct directions
	c := make(corpus.Corpus, 500)
	vectors := make(map[string][]float32, len(c))
	for i := range c {
		c[i] = corpus.Record{ID: fmt.Sprintf("doc%03d", i), Title: fmt.Sprintf("t%03d", i)}
		step := float32(i % 20)
		vectors[c[i].EmbeddingText()] = []float32{1, step / 10}
	}
	e := &stubEmbedder{vectors: vectors, fallback: []float32{1, 0}}
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))

	// When: taking a partial top-k and the full ranking
	full, err := r.QueryScored(context.Background(), "q", len(c))
	require.NoError(t, err)
	top, err := r.QueryScored(context.Background(), "q", 37)
	require.NoError(t, err)

	// Then: the partial selection is a prefix of the full order, ties by index
	assert.Equal(t, full[:37], top)
	for i := 1; i < len(full); i++ {
		assert.LessOrEqual(t, compareHits(full[i-1], full[i]), 0)
	}
}
